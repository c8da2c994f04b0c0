// Package admin is the daemon's administrative RPC layer. Functions are
// registered by name with an argument schema; each call carries a transaction
// id. A handler's return value is the call's response, and anything sent to
// the transaction afterwards (or meanwhile) is a push.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrBusyTransaction = errors.New("transaction already in progress")
	ErrNoResponse      = errors.New("function sent no response")
	ErrNoListener      = errors.New("no listener for transaction")
)

// ArgType is the declared type of a function argument.
type ArgType string

const (
	String ArgType = "String"
	Int    ArgType = "Int"
)

// FunctionArg declares one argument of a registered function.
type FunctionArg struct {
	Name     string  `json:"-"`
	Required bool    `json:"required"`
	Type     ArgType `json:"type"`
}

// Handler runs a call and returns its response. A nil response is an error.
type Handler func(args Args, txid string) any

// Sink receives messages addressed to transactions with no call in progress.
type Sink interface {
	Deliver(txid string, payload []byte) error
}

type function struct {
	handler Handler
	args    []FunctionArg
}

// Admin routes calls to registered functions and messages to transactions.
type Admin struct {
	mu        sync.Mutex
	functions map[string]function
	pending   map[string]struct{}
	sinks     []Sink
	logger    *slog.Logger
}

// New creates an Admin that delivers pushes to sinks in order.
func New(logger *slog.Logger, sinks ...Sink) *Admin {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Admin{
		functions: make(map[string]function),
		pending:   make(map[string]struct{}),
		sinks:     sinks,
		logger:    logger.With("component", "admin"),
	}
}

// AddSink appends a push sink.
func (a *Admin) AddSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// RegisterFunction makes h callable as name. A later registration under the
// same name replaces the earlier one.
func (a *Admin) RegisterFunction(name string, h Handler, args ...FunctionArg) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.functions[name] = function{handler: h, args: args}
	a.logger.Debug("admin function registered", "function", name, "args", len(args))
}

// Functions describes every registered function's arguments, keyed by
// function name and then argument name.
func (a *Admin) Functions() map[string]map[string]FunctionArg {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]map[string]FunctionArg, len(a.functions))
	for name, fn := range a.functions {
		args := make(map[string]FunctionArg, len(fn.args))
		for _, arg := range fn.args {
			args[arg.Name] = arg
		}
		out[name] = args
	}
	return out
}

// FunctionNames returns the registered names, sorted.
func (a *Admin) FunctionNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.functions))
	for name := range a.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call validates args against name's schema, runs the handler and returns
// its response encoded as JSON.
func (a *Admin) Call(name string, args Args, txid string) (json.RawMessage, error) {
	a.mu.Lock()
	fn, ok := a.functions[name]
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if _, busy := a.pending[txid]; busy {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBusyTransaction, txid)
	}
	if err := checkArgs(fn.args, args); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	a.pending[txid] = struct{}{}
	a.mu.Unlock()

	resp := fn.handler(args, txid)

	a.mu.Lock()
	delete(a.pending, txid)
	a.mu.Unlock()

	if resp == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResponse, name)
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", name, err)
	}
	return payload, nil
}

// SendMessage encodes msg as JSON and pushes it to every sink under txid. It
// never answers a call, even one still running on txid.
func (a *Admin) SendMessage(msg any, txid string) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	a.mu.Lock()
	sinks := a.sinks
	a.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Deliver(txid, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Args are the decoded arguments of a call. Integers arrive as json.Number
// when decoded from HTTP and as Go integers when built in process.
type Args map[string]any

// String returns the string argument name.
func (a Args) String(name string) (string, bool) {
	s, ok := a[name].(string)
	return s, ok
}

// Int returns the integer argument name.
func (a Args) Int(name string) (int64, bool) {
	switch v := a[name].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

// ArgError reports a call whose arguments do not fit the schema.
type ArgError struct {
	Arg    string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q %s", e.Arg, e.Reason)
}

func checkArgs(schema []FunctionArg, args Args) error {
	for _, decl := range schema {
		if _, present := args[decl.Name]; !present {
			if decl.Required {
				return &ArgError{Arg: decl.Name, Reason: "is required"}
			}
			continue
		}
		switch decl.Type {
		case String:
			if _, ok := args.String(decl.Name); !ok {
				return &ArgError{Arg: decl.Name, Reason: "must be a string"}
			}
		case Int:
			if _, ok := args.Int(decl.Name); !ok {
				return &ArgError{Arg: decl.Name, Reason: "must be an integer"}
			}
		}
	}
	return nil
}
