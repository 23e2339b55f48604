// Package builtin provides the stock tool set: filesystem access, web
// search, and code execution. Tools are constructed from configuration
// and registered into a tools.Registry; agents then select by name the
// subset their role permits.
package builtin

import (
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/config"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// RegisterAll registers the builtin tools configured by cfg. File tools
// are confined to cfg.BaseDir when it is set. code_execute is only
// registered when cfg.ExecEnabled is true.
func RegisterAll(reg *tools.Registry, cfg config.ToolsConfig) error {
	all := []tools.Tool{
		NewFileRead(cfg.BaseDir),
		NewFileWrite(cfg.BaseDir),
		NewListDirectory(cfg.BaseDir),
		NewWebSearch(cfg.SearchMaxResults),
	}
	if cfg.ExecEnabled {
		all = append(all, NewCodeExecute(cfg.ExecInterpreter, cfg.ExecTimeout()))
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
