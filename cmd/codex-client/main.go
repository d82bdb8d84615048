// ABOUTME: Terminal client for codex-http-server
// ABOUTME: Sends each prompt to /v1/responses and renders the SSE stream

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

// responsesRequest mirrors the server's request body.
type responsesRequest struct {
	Input        string  `json:"input"`
	Instructions *string `json:"instructions,omitempty"`
	Store        bool    `json:"store"`
}

// sseEnvelope is the JSON carried on every data line.
type sseEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// agentEvent is the part of an agent event the client renders.
type agentEvent struct {
	ID  string         `json:"id"`
	Msg map[string]any `json:"msg"`
}

var (
	dim    = color.New(color.Faint)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
)

func main() {
	server := pflag.StringP("server", "s", "http://localhost:8080", "codex-http-server URL")
	instructions := pflag.String("instructions", "", "instructions sent with every prompt")
	verbose := pflag.BoolP("verbose", "v", false, "print every event, not just agent output")
	health := pflag.Bool("health", false, "check server health and exit")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &client{
		server:  strings.TrimSuffix(*server, "/"),
		verbose: *verbose,
	}
	if *instructions != "" {
		c.instructions = instructions
	}

	var err error
	switch {
	case *health:
		err = c.checkHealth(ctx)
	case pflag.NArg() > 0:
		err = c.send(ctx, strings.Join(pflag.Args(), " "))
	default:
		fmt.Printf("codex-client connected to %s\n", c.server)
		fmt.Println("Type a prompt and press Enter. /quit to exit.")
		fmt.Println()
		err = c.run(ctx)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	server       string
	instructions *string
	verbose      bool
}

func (c *client) run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := c.send(ctx, input); err != nil {
			red.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

func (c *client) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func (c *client) send(ctx context.Context, input string) error {
	bodyBytes, err := json.Marshal(responsesRequest{
		Input:        input,
		Instructions: c.instructions,
		Store:        true,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/v1/responses", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.Header.Get("Content-Type") == "application/json" {
			var errResp map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
				if msg, ok := errResp["error"]; ok {
					return fmt.Errorf("%s", msg)
				}
			}
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return c.streamSSE(ctx, resp.Body)
}

func (c *client) streamSSE(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// Blank line ends a frame
		if line == "" {
			if len(dataLines) > 0 {
				if err := c.handleFrame(strings.Join(dataLines, "\n")); err != nil {
					return err
				}
			}
			dataLines = nil
			continue
		}

		// The envelope already carries the event label
		if strings.HasPrefix(line, "event:") {
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(data, " "))
		}
	}

	return scanner.Err()
}

func (c *client) handleFrame(data string) error {
	var env sseEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return fmt.Errorf("parsing frame: %w", err)
	}

	if env.Event == "error" {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(env.Data, &payload)
		red.Printf("[stream error] %s\n", payload.Error)
		return nil
	}

	var ev agentEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Msg == nil {
		dim.Printf("[unreadable event] %s\n", string(env.Data))
		return nil
	}

	msgType, _ := ev.Msg["type"].(string)
	switch msgType {
	case "agent_message_delta":
		if delta, ok := ev.Msg["delta"].(string); ok {
			fmt.Print(delta)
		}
	case "agent_message":
		// Deltas already printed the text; end the line.
		fmt.Println()
	case "session_configured":
		if c.verbose {
			dim.Printf("[session %v] model=%v provider=%v\n", ev.Msg["session_id"], ev.Msg["model"], ev.Msg["model_provider"])
		}
	case "token_count":
		if c.verbose {
			dim.Printf("[tokens] in=%v out=%v total=%v\n", ev.Msg["input_tokens"], ev.Msg["output_tokens"], ev.Msg["total_tokens"])
		}
	case "background_event":
		yellow.Printf("[background] %v\n", ev.Msg["message"])
	case "task_complete":
		if c.verbose {
			green.Println("[done]")
		}
	case "error":
		red.Printf("[error] %v\n", ev.Msg["message"])
	default:
		if c.verbose {
			dim.Printf("[%s]\n", msgType)
		}
	}
	return nil
}
