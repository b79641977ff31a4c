package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/ir"
)

// Backend renders a lowered translation unit as output text.
type Backend interface {
	Generate(unit *ir.Unit, cfg *config.Config) (*bytes.Buffer, error)
}

// NewBackend selects a backend by name: "c" for compilable C, "ir" for an annotated
// listing of the statement stream.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "c", "":
		return &cBackend{}, nil
	case "ir":
		return &irBackend{}, nil
	}
	return nil, fmt.Errorf("unsupported backend '%s'. Supported: 'c', 'ir'", name)
}

type cBackend struct{}

func (b *cBackend) Generate(unit *ir.Unit, cfg *config.Config) (*bytes.Buffer, error) {
	if unit == nil {
		return nil, fmt.Errorf("c backend: no translation unit")
	}
	var buf bytes.Buffer
	buf.WriteString(unit.String())
	return &buf, nil
}

// irBackend prints every statement with its kind and nesting depth.
type irBackend struct{}

func (b *irBackend) Generate(unit *ir.Unit, cfg *config.Config) (*bytes.Buffer, error) {
	if unit == nil {
		return nil, fmt.Errorf("ir backend: no translation unit")
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "; %d statements, string capacity %d, fingerprint %016x\n",
		len(unit.Stmts), cfg.StringCapacity, unit.Fingerprint())
	for _, s := range unit.Stmts {
		fmt.Fprintf(&buf, "%-11s %d  %s\n", s.Kind, s.Depth, s.Text)
	}
	return &buf, nil
}
