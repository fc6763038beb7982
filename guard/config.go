package guard

import "time"

const (
	DefaultLoginRoute          = "/login"
	DefaultUnauthorizedRoute   = "/unauthorized"
	DefaultStoreSelectionRoute = "/stores/select"
	DefaultLandingRoute        = "/"
	DefaultStoreParam          = "storeId"
	DefaultInitWait            = 10 * time.Second
)

// Config holds the routes the pipeline redirects to.
type Config interface {
	GetLoginRoute() string
	GetUnauthorizedRoute() string
	GetStoreSelectionRoute() string
	GetLandingRoute() string
	GetStoreParam() string
	GetInitWait() time.Duration
}

// Routes is a plain Config. Zero fields fall back to the defaults.
type Routes struct {
	Login          string        `yaml:"login"`
	Unauthorized   string        `yaml:"unauthorized"`
	StoreSelection string        `yaml:"store_selection"`
	Landing        string        `yaml:"landing"`
	StoreParam     string        `yaml:"store_param"`
	InitWait       time.Duration `yaml:"init_wait"`
}

func (r Routes) GetLoginRoute() string {
	return orDefault(r.Login, DefaultLoginRoute)
}

func (r Routes) GetUnauthorizedRoute() string {
	return orDefault(r.Unauthorized, DefaultUnauthorizedRoute)
}

func (r Routes) GetStoreSelectionRoute() string {
	return orDefault(r.StoreSelection, DefaultStoreSelectionRoute)
}

func (r Routes) GetLandingRoute() string {
	return orDefault(r.Landing, DefaultLandingRoute)
}

func (r Routes) GetStoreParam() string {
	return orDefault(r.StoreParam, DefaultStoreParam)
}

func (r Routes) GetInitWait() time.Duration {
	if r.InitWait <= 0 {
		return DefaultInitWait
	}
	return r.InitWait
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
