package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyperboria-dev/cjdns/internal/admin"
	"github.com/hyperboria-dev/cjdns/internal/config"
	"github.com/hyperboria-dev/cjdns/internal/logging"
	"github.com/hyperboria-dev/cjdns/internal/redis"
)

var (
	clientAddr  string
	clientToken string

	subLevel string
	subFile  string
	subLine  int
	subJSON  bool
	subRedis bool
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Stream matching log records until interrupted",
	Long: `Subscribe to the daemon's log and print every matching record.
Example: cjdns-admin subscribe --level WARN --file net.c --line 42`,
	RunE: runSubscribe,
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe STREAM_ID",
	Short: "Remove a log subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnsubscribe,
}

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the admin functions and their arguments",
	RunE:  runFunctions,
}

func init() {
	for _, c := range []*cobra.Command{subscribeCmd, unsubscribeCmd, functionsCmd} {
		c.Flags().StringVarP(&clientAddr, "addr", "a", "", "Admin address, defaults to ADMIN_ADDR")
		c.Flags().StringVarP(&clientToken, "token", "t", "", "Admin token, defaults to ADMIN_TOKEN")
	}

	subscribeCmd.Flags().StringVarP(&subLevel, "level", "l", "", "Minimum level (KEYS, DEBUG, INFO, WARN, ERROR, CRITICAL)")
	subscribeCmd.Flags().StringVarP(&subFile, "file", "f", "", "Only records from this source file")
	subscribeCmd.Flags().IntVarP(&subLine, "line", "n", 0, "Only records from this source line")
	subscribeCmd.Flags().BoolVar(&subJSON, "json", false, "Print records as JSON")
	subscribeCmd.Flags().BoolVar(&subRedis, "redis", false, "Receive records from Redis pub/sub instead of the admin stream")
}

func newClient() (*admin.Client, *config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	addr := clientAddr
	if addr == "" {
		addr = cfg.AdminAddr
	}
	token := clientToken
	if token == "" {
		token = os.Getenv("ADMIN_TOKEN")
	}
	return admin.NewClient(addr, token), cfg, nil
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	txid := uuid.New().String()

	// Listen before subscribing so no record is missed.
	var records <-chan []byte
	if subRedis {
		if cfg.Redis == nil {
			return errors.New("--redis needs REDIS_HOST")
		}
		rc, err := redis.New(ctx, *cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()
		ps := redis.Subscribe(ctx, rc, txid)
		defer ps.Close()
		if _, err := ps.Receive(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to Redis: %w", err)
		}
		ch := make(chan []byte)
		go func() {
			defer close(ch)
			for msg := range ps.Channel() {
				select {
				case ch <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}()
		records = ch
	} else {
		if records, err = client.Stream(ctx, txid); err != nil {
			return err
		}
	}

	callArgs := admin.Args{}
	if subLevel != "" {
		callArgs["level"] = subLevel
	}
	if subFile != "" {
		callArgs["file"] = subFile
	}
	if subLine != 0 {
		callArgs["line"] = subLine
	}

	resp, err := client.Call(ctx, logging.SubscribeFunction, callArgs, txid)
	if err != nil {
		return err
	}
	if msg, _ := resp["error"].(string); msg != "none" {
		return errors.New(msg)
	}
	streamID, _ := resp["streamId"].(string)
	fmt.Fprintf(os.Stderr, "subscribed, streamId %s\n", streamID)

	defer func() {
		unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unsubscribe(unsubCtx, client, streamID); err != nil {
			fmt.Fprintf(os.Stderr, "unsubscribe failed: %v\n", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-records:
			if !ok {
				return errors.New("stream closed by server")
			}
			printRecord(data)
		}
	}
}

func printRecord(data []byte) {
	if subJSON {
		fmt.Println(string(data))
		return
	}
	var rec logging.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%s %s %s:%d %s\n",
		time.Unix(rec.Time, 0).Format(time.DateTime),
		rec.Level,
		filepath.Base(rec.File),
		rec.Line,
		rec.Message,
	)
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	return unsubscribe(cmd.Context(), client, args[0])
}

func unsubscribe(ctx context.Context, client *admin.Client, streamID string) error {
	resp, err := client.Call(ctx, logging.UnsubscribeFunction, admin.Args{"streamId": streamID}, uuid.New().String())
	if err != nil {
		return err
	}
	if msg, _ := resp["error"].(string); msg != "none" {
		return errors.New(msg)
	}
	return nil
}

func runFunctions(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	fns, err := client.Functions(cmd.Context())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
		argNames := make([]string, 0, len(fns[name]))
		for arg := range fns[name] {
			argNames = append(argNames, arg)
		}
		sort.Strings(argNames)
		for _, arg := range argNames {
			decl := fns[name][arg]
			req := "optional"
			if decl.Required {
				req = "required"
			}
			fmt.Printf("  %s %s (%s)\n", arg, decl.Type, req)
		}
	}
	return nil
}
