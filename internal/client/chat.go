package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/randalmurphal/taskrouter/internal/server"
)

// Chat runs the interactive loop: read a query, print the answer, and ask
// for an approval decision whenever the server interrupts. It returns nil
// on "exit" or end of input. Prompts are only written when interactive.
func (c *Client) Chat(ctx context.Context, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	readLine := func(prompt string) (string, bool) {
		if interactive {
			fmt.Fprint(out, prompt)
		}
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	if interactive {
		fmt.Fprintf(out, "Client is ready. Enter your query or 'exit' to quit. (Connecting to %s)\n", c.URL())
	}

	var sessionID string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		query, ok := readLine("Query: ")
		if !ok {
			if interactive {
				fmt.Fprintln(out, "\nExiting.")
			}
			return scanner.Err()
		}
		if strings.EqualFold(query, "exit") {
			return nil
		}
		if query == "" {
			continue
		}

		res, err := c.Query(ctx, sessionID, query)
		if err != nil {
			if reportable(err) {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			return err
		}

		if res.Interrupt {
			printApproval(out, res)
			decision, ok := readLine("请输入审批意见: ")
			if !ok {
				return scanner.Err()
			}
			res, err = c.Resume(ctx, res.SessionID, decision)
			if err != nil {
				if reportable(err) {
					fmt.Fprintf(out, "Error: %v\n", err)
					continue
				}
				return err
			}
		}

		fmt.Fprintln(out, "Answer:", res.Text)
		sessionID = res.SessionID
	}
}

// reportable reports whether the loop can continue after err.
func reportable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func printApproval(out io.Writer, res *server.QueryResponse) {
	fmt.Fprintln(out, "系统提示:", res.Question)
	if res.Function == "" {
		return
	}
	fmt.Fprintf(out, "工具调用: %s\n", res.Function)
	fmt.Fprintln(out, "参数:")
	for _, k := range slices.Sorted(maps.Keys(res.Args)) {
		fmt.Fprintf(out, "  %s: %v\n", k, res.Args[k])
	}
}
