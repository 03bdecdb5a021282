package auth

import (
	"net/url"
	"strings"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// ReturnToParam carries the originally requested path through the login page.
const ReturnToParam = "redirecionarPara"

// DefaultPublicRoutes are reachable without a session. "/x" matches only "/x";
// "/x/*" matches "/x" and everything below it.
var DefaultPublicRoutes = []string{
	"/",
	"/sobre",
	"/contato",
	"/carrinho",
	"/conta",
	"/livros",
	"/livros/*",
	"/flores",
	"/flores/*",
	"/produtos/*",
	"/blog",
	"/blog/*",
	"/esqueci-senha",
	"/redefinir-senha",
	"/api/auth/*",
	"/api/produtos/*",
	"/static/*",
	"/health/*",
	"/metrics",
}

// DefaultAuthPages redirect already-authenticated visitors to their home route.
var DefaultAuthPages = []string{"/login", "/cadastro"}

// DefaultRoleAreas restricts dashboard prefixes to specific roles.
var DefaultRoleAreas = []RoleArea{
	{Prefix: "/dashboard/admin", Allowed: []domain.Role{domain.RoleAdmin}},
	{Prefix: "/dashboard/funcionario", Allowed: []domain.Role{domain.RoleAdmin, domain.RoleEmployee}},
	{Prefix: "/dashboard/afiliado", Allowed: []domain.Role{domain.RoleAdmin, domain.RoleAffiliate}},
	{Prefix: "/api/admin", Allowed: []domain.Role{domain.RoleAdmin}},
	{Prefix: "/api/funcionario", Allowed: []domain.Role{domain.RoleAdmin, domain.RoleEmployee}},
}

// RoleArea limits a path prefix (and everything below it) to a set of roles.
type RoleArea struct {
	Prefix  string
	Allowed []domain.Role
}

type pathPattern struct {
	path   string
	prefix bool
}

func parsePattern(raw string) pathPattern {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "/*") {
		return pathPattern{path: normalizePath(strings.TrimSuffix(raw, "/*")), prefix: true}
	}
	return pathPattern{path: normalizePath(raw)}
}

func (p pathPattern) match(path string) bool {
	if path == p.path {
		return true
	}
	if !p.prefix {
		return false
	}
	if p.path == "/" {
		return true
	}
	return strings.HasPrefix(path, p.path+"/")
}

// RouteTable classifies request paths. It is immutable after construction and safe
// for concurrent use.
type RouteTable struct {
	public    []pathPattern
	authPages []pathPattern
	areas     []roleArea
	loginPath string
}

type roleArea struct {
	pattern pathPattern
	allowed map[domain.Role]struct{}
}

// RouteTableConfig lists the inputs for NewRouteTable. Nil slices fall back to defaults.
type RouteTableConfig struct {
	Public    []string
	AuthPages []string
	RoleAreas []RoleArea
	LoginPath string
}

// NewRouteTable compiles the route classification.
func NewRouteTable(cfg RouteTableConfig) *RouteTable {
	if cfg.Public == nil {
		cfg.Public = DefaultPublicRoutes
	}
	if cfg.AuthPages == nil {
		cfg.AuthPages = DefaultAuthPages
	}
	if cfg.RoleAreas == nil {
		cfg.RoleAreas = DefaultRoleAreas
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}

	rt := &RouteTable{loginPath: normalizePath(cfg.LoginPath)}
	for _, raw := range cfg.Public {
		rt.public = append(rt.public, parsePattern(raw))
	}
	for _, raw := range cfg.AuthPages {
		rt.authPages = append(rt.authPages, parsePattern(raw))
	}
	for _, area := range cfg.RoleAreas {
		allowed := make(map[domain.Role]struct{}, len(area.Allowed))
		for _, role := range area.Allowed {
			allowed[role] = struct{}{}
		}
		rt.areas = append(rt.areas, roleArea{
			pattern: pathPattern{path: normalizePath(area.Prefix), prefix: true},
			allowed: allowed,
		})
	}
	return rt
}

// IsPublic reports whether path needs no session.
func (rt *RouteTable) IsPublic(path string) bool {
	return matchAny(rt.public, normalizePath(path))
}

// IsAuthPage reports whether path is a login or registration page.
func (rt *RouteTable) IsAuthPage(path string) bool {
	return matchAny(rt.authPages, normalizePath(path))
}

// RoleAllowed reports whether role may enter path. The first matching area decides;
// paths outside every area are open to any authenticated role.
func (rt *RouteTable) RoleAllowed(path string, role domain.Role) bool {
	path = normalizePath(path)
	for _, area := range rt.areas {
		if area.pattern.match(path) {
			_, ok := area.allowed[role]
			return ok
		}
	}
	return true
}

// LoginRedirect returns the login URL that brings the user back to path afterwards.
func (rt *RouteTable) LoginRedirect(path string) string {
	if path == "" || path == rt.loginPath {
		return rt.loginPath
	}
	// Slashes are legal in a query component and keep the URL readable.
	escaped := strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
	return rt.loginPath + "?" + ReturnToParam + "=" + escaped
}

func matchAny(patterns []pathPattern, path string) bool {
	for _, p := range patterns {
		if p.match(path) {
			return true
		}
	}
	return false
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
