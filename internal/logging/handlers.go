package logging

import "github.com/hyperboria-dev/cjdns/internal/admin"

const (
	SubscribeFunction   = "AdminLog_subscribe"
	UnsubscribeFunction = "AdminLog_unsubscribe"
)

// Register exposes b's subscribe and unsubscribe operations on a. Responses
// are returned to the call, so a record matching a new subscription before
// the call returns is pushed, never mistaken for the response.
func Register(a *admin.Admin, b *Broadcaster) {
	a.RegisterFunction(SubscribeFunction, func(args admin.Args, txid string) any {
		var req SubscribeRequest
		if s, ok := args.String("level"); ok {
			req.Level = &s
		}
		if s, ok := args.String("file"); ok {
			req.File = &s
		}
		if n, ok := args.Int("line"); ok {
			req.Line = &n
		}

		id, err := b.Subscribe(req, txid)
		resp := map[string]any{"error": responseMessage(err)}
		if err == nil {
			resp["streamId"] = id.String()
		}
		return resp
	},
		admin.FunctionArg{Name: "level", Type: admin.String},
		admin.FunctionArg{Name: "line", Type: admin.Int},
		admin.FunctionArg{Name: "file", Type: admin.String},
	)

	a.RegisterFunction(UnsubscribeFunction, func(args admin.Args, txid string) any {
		id, _ := args.String("streamId")
		return map[string]any{"error": responseMessage(b.Unsubscribe(id))}
	},
		admin.FunctionArg{Name: "streamId", Required: true, Type: admin.String},
	)
}
