package router

import (
	"strings"

	"github.com/beego/beego/v2/server/web"
)

// RouteGroup 路由组
type RouteGroup struct {
	prefix   string
	children []*RouteGroup
	routes   []Route
}

// Route 路由定义
type Route struct {
	Method     string
	Path       string
	Controller web.ControllerInterface
	Handler    string
	Comment    string
}

// RouteDefinition 路由定义（用于调试和文档）
type RouteDefinition struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
	Comment string `json:"comment,omitempty"`
}

// NewRouteGroup 创建路由组
func NewRouteGroup(prefix string) *RouteGroup {
	return &RouteGroup{prefix: prefix}
}

// Group 创建子路由组
func (rg *RouteGroup) Group(prefix string) *RouteGroup {
	child := NewRouteGroup(prefix)
	rg.children = append(rg.children, child)
	return child
}

// Add 添加路由
func (rg *RouteGroup) Add(method, path string, controller web.ControllerInterface, handler string, comment ...string) *RouteGroup {
	route := Route{
		Method:     strings.ToUpper(method),
		Path:       path,
		Controller: controller,
		Handler:    handler,
	}
	if len(comment) > 0 {
		route.Comment = comment[0]
	}
	rg.routes = append(rg.routes, route)
	return rg
}

// GET 添加GET路由
func (rg *RouteGroup) GET(path string, controller web.ControllerInterface, handler string, comment ...string) *RouteGroup {
	return rg.Add("GET", path, controller, handler, comment...)
}

// POST 添加POST路由
func (rg *RouteGroup) POST(path string, controller web.ControllerInterface, handler string, comment ...string) *RouteGroup {
	return rg.Add("POST", path, controller, handler, comment...)
}

// Register 注册到beego服务器
func (rg *RouteGroup) Register(srv *web.HttpServer) {
	rg.walk("", func(prefix string, route Route) {
		srv.Router(prefix+route.Path, route.Controller, strings.ToLower(route.Method)+":"+route.Handler)
	})
}

// GetAllRoutes 获取所有路由定义
func (rg *RouteGroup) GetAllRoutes() []RouteDefinition {
	var routes []RouteDefinition
	rg.walk("", func(prefix string, route Route) {
		routes = append(routes, RouteDefinition{
			Method:  route.Method,
			Path:    prefix + route.Path,
			Handler: route.Handler,
			Comment: route.Comment,
		})
	})
	return routes
}

func (rg *RouteGroup) walk(prefix string, fn func(prefix string, route Route)) {
	current := prefix + rg.prefix
	for _, route := range rg.routes {
		fn(current, route)
	}
	for _, child := range rg.children {
		child.walk(current, fn)
	}
}
