package http

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrPluginExists      = errors.New("http: plugin already loaded")
	ErrPluginDependency  = errors.New("http: plugin dependency not loaded")
	ErrServerStarted     = errors.New("http: server already started")
	ErrPluginInitialize  = errors.New("http: plugin initialization failed")
	ErrPluginStartAbort  = errors.New("http: plugin aborted server start")
	ErrPluginRegister = errors.New("http: plugin route registration failed")
)

// Plugin extends the server with routes, middleware and lifecycle hooks.
//
// Route and middleware publication is deferred: AddPlugin only validates
// and initializes; RegisterRoutes/RegisterMiddleware run at Start in
// priority order (lower first, stable), so priority governs routes,
// middleware and lifecycle hooks uniformly.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	Author() string

	// Priority orders plugins; lower runs first. Default 500.
	Priority() int
	Enabled() bool
	Dependencies() []string

	Initialize(server *Server) error
	RegisterRoutes(router *Router) error
	RegisterMiddleware(server *Server)

	// OnServerStart runs before the accept loop. A non-nil error aborts
	// startup; already-started plugins are unwound in reverse order.
	OnServerStart() error
	OnServerStop()

	// Shutdown releases plugin resources. Must not fail.
	Shutdown()
}

// PluginBase supplies the default plugin behavior; embed it and override
// what the plugin needs.
type PluginBase struct{}

func (PluginBase) Version() string { return "1.0.0" }
func (PluginBase) Description() string { return "" }
func (PluginBase) Author() string { return "" }
func (PluginBase) Priority() int { return 500 }
func (PluginBase) Enabled() bool { return true }
func (PluginBase) Dependencies() []string { return nil }
func (PluginBase) Initialize(*Server) error { return nil }
func (PluginBase) RegisterRoutes(*Router) error { return nil }
func (PluginBase) RegisterMiddleware(*Server) {}
func (PluginBase) OnServerStart() error { return nil }
func (PluginBase) OnServerStop() {}
func (PluginBase) Shutdown() {}

// AddPlugin validates, initializes and stores a plugin. Must not be called
// after Start.
func (s *Server) AddPlugin(p Plugin) error {
	if s.running.Load() {
		return ErrServerStarted
	}
	if s.PluginByName(p.Name()) != nil {
		return fmt.Errorf("%w: %s", ErrPluginExists, p.Name())
	}
	for _, dep := range p.Dependencies() {
		if s.PluginByName(dep) == nil {
			return fmt.Errorf("%w: %s requires %s", ErrPluginDependency, p.Name(), dep)
		}
	}

	if err := p.Initialize(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPluginInitialize, p.Name(), err)
	}

	s.plugins = append(s.plugins, p)
	sort.SliceStable(s.plugins, func(i, j int) bool {
		return s.plugins[i].Priority() < s.plugins[j].Priority()
	})
	return nil
}

// RemovePlugin drops a plugin by name before start.
func (s *Server) RemovePlugin(name string) bool {
	if s.running.Load() {
		return false
	}
	for i, p := range s.plugins {
		if p.Name() == name {
			s.plugins = append(s.plugins[:i], s.plugins[i+1:]...)
			return true
		}
	}
	return false
}

// PluginByName returns a loaded plugin or nil.
func (s *Server) PluginByName(name string) Plugin {
	for _, p := range s.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Plugins returns the loaded plugins in priority order.
func (s *Server) Plugins() []Plugin {
	return s.plugins
}

// publishPlugins registers every enabled plugin's routes and middleware in
// priority order.
func (s *Server) publishPlugins() error {
	for _, p := range s.plugins {
		if !p.Enabled() {
			continue
		}
		if err := p.RegisterRoutes(s.router); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPluginRegister, p.Name(), err)
		}
		p.RegisterMiddleware(s)
	}
	return nil
}

// startPlugins runs OnServerStart hooks in priority order, unwinding in
// reverse when one fails.
func (s *Server) startPlugins() error {
	var started []Plugin
	for _, p := range s.plugins {
		if !p.Enabled() {
			continue
		}
		if err := p.OnServerStart(); err != nil {
			s.logger.Error("plugin aborted start", "plugin", p.Name(), "error", err)
			for i := len(started) - 1; i >= 0; i-- {
				started[i].OnServerStop()
				started[i].Shutdown()
			}
			return fmt.Errorf("%w: %s: %v", ErrPluginStartAbort, p.Name(), err)
		}
		started = append(started, p)
	}
	return nil
}

// stopPlugins runs OnServerStop then Shutdown per plugin in reverse
// priority order.
func (s *Server) stopPlugins() {
	for i := len(s.plugins) - 1; i >= 0; i-- {
		if !s.plugins[i].Enabled() {
			continue
		}
		s.plugins[i].OnServerStop()
		s.plugins[i].Shutdown()
	}
}
