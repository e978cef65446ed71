/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
chat-cli - interactive chatraft client

Connects to a chatraft node over HTTP and provides a REPL for posting
chat messages and inspecting cluster state. Follows redirects so a
client pointed at any node still reaches the leader transparently.
*/
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"chatraft/internal/statemachine"
	"chatraft/pkg/cli"
)

const version = "1.0.0"

type client struct {
	baseURL string
	user    string
	room    string
	http    *http.Client
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "HTTP address of a chatraft node")
	user := flag.String("user", "", "Username to post chat messages as")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chat-cli v%s\n", version)
		return
	}

	userName := *user
	if userName == "" {
		userName = cli.PromptWithDefault("Username", "anonymous")
	}

	c := &client{
		baseURL: "http://" + *addr,
		user:    userName,
		room:    statemachine.GeneralRoom,
		http: &http.Client{
			Timeout: 5 * time.Second,
			// Follow /chat redirects automatically so the REPL always
			// lands on the current leader without the user caring which
			// node --addr pointed at.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects chasing the leader")
				}
				// net/http turns a redirected POST into a body-less GET;
				// re-issue the original POST against the new location.
				if orig := via[0]; orig.Method == http.MethodPost && orig.GetBody != nil {
					body, err := orig.GetBody()
					if err != nil {
						return err
					}
					req.Method = http.MethodPost
					req.Body = body
					req.GetBody = orig.GetBody
					req.ContentLength = orig.ContentLength
					req.Header.Set("Content-Type", orig.Header.Get("Content-Type"))
				}
				return nil
			},
		},
	}

	cli.PrintInfo("connected to %s as %s (room: %s)", c.baseURL, c.user, c.room)
	fmt.Println(cli.Dimmed("Type /help for commands. Anything else is sent as a chat message."))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      promptFor(c),
		HistoryFile: historyFilePath(),
	})
	if err != nil {
		cli.PrintError("failed to start input reader: %v", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(promptFor(c))
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if !c.runCommand(line) {
				break
			}
			continue
		}

		c.postChat(line)
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chat-cli-history"
	}
	return home + "/.chat-cli-history"
}

func promptFor(c *client) string {
	return fmt.Sprintf("%s[%s]%s ", cli.Cyan, c.room, cli.Reset)
}

// runCommand handles a "/"-prefixed line and reports whether the REPL
// should keep running.
func (c *client) runCommand(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/help":
		printHelp()
	case "/quit", "/exit":
		return false
	case "/room":
		if len(args) != 1 {
			cli.PrintWarning("usage: /room <name>")
			return true
		}
		c.room = args[0]
		cli.PrintSuccess("switched to room %q", c.room)
	case "/rooms":
		c.listRooms()
	case "/history":
		c.printHistory()
	case "/status":
		c.printStatus()
	case "/room-add":
		if len(args) != 1 {
			cli.PrintWarning("usage: /room-add <name>")
			return true
		}
		c.postCommand(map[string]string{"type": "room_add", "room": args[0]})
	case "/room-delete":
		if len(args) != 1 {
			cli.PrintWarning("usage: /room-delete <name>")
			return true
		}
		c.postCommand(map[string]string{"type": "room_delete", "room": args[0]})
	default:
		cli.ErrInvalidCommand(cmd).Print()
	}
	return true
}

func printHelp() {
	h := cli.NewHelpFormatter("chat-cli", version)
	h.AddCommand(cli.Command{Name: "/help", Description: "Show this help message"})
	h.AddCommand(cli.Command{Name: "/room <name>", Description: "Switch the room new messages are posted to"})
	h.AddCommand(cli.Command{Name: "/room-add <name>", Description: "Create a new room"})
	h.AddCommand(cli.Command{Name: "/room-delete <name>", Description: "Delete a room (general cannot be deleted)"})
	h.AddCommand(cli.Command{Name: "/rooms", Description: "List known rooms from committed messages"})
	h.AddCommand(cli.Command{Name: "/history", Description: "Show messages posted to the current room"})
	h.AddCommand(cli.Command{Name: "/status", Description: "Show the connected node's RAFT status"})
	h.AddCommand(cli.Command{Name: "/quit", Description: "Exit chat-cli"})
	h.PrintUsage()
}

func (c *client) postChat(text string) {
	c.postCommand(map[string]string{
		"type": "chat",
		"user": c.user,
		"text": text,
		"room": c.room,
		"id":   fmt.Sprintf("%s-%d", c.user, time.Now().UnixNano()),
	})
}

func (c *client) postCommand(cmd map[string]string) {
	body, _ := json.Marshal(cmd)

	spinner := cli.NewSpinner("sending to the leader...")
	spinner.Start()
	resp, err := c.http.Post(c.baseURL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		spinner.StopWithError(fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		switch cmd["type"] {
		case "room_add":
			spinner.StopWithSuccess(fmt.Sprintf("room %q created", cmd["room"]))
		case "room_delete":
			spinner.StopWithSuccess(fmt.Sprintf("room %q deleted", cmd["room"]))
		default:
			// Plain chat proposals stay quiet; /history will surface the
			// message once committed instead of echoing a confirmation
			// for every line typed.
			spinner.Stop()
		}
	case http.StatusFound:
		spinner.StopWithWarning("not the leader; election may be in progress, retry shortly")
	default:
		data, _ := io.ReadAll(resp.Body)
		spinner.StopWithError(fmt.Sprintf("unexpected response %d: %s", resp.StatusCode, string(data)))
	}
}

func (c *client) fetchMessages() ([]map[string]any, error) {
	resp, err := c.http.Get(c.baseURL + "/messages")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var msgs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *client) printHistory() {
	msgs, err := c.fetchMessages()
	if err != nil {
		cli.ErrConnectionFailed(c.baseURL, "", err).Print()
		return
	}

	t := cli.NewTable("user", "text")
	count := 0
	for _, m := range msgs {
		if m["type"] != "chat" {
			continue
		}
		if room, _ := m["room"].(string); room != c.room {
			continue
		}
		user, _ := m["user"].(string)
		text, _ := m["text"].(string)
		t.AddRow(user, text)
		count++
	}
	if count == 0 {
		fmt.Println(cli.Dimmed("(no messages in this room yet)"))
		return
	}
	t.Print()
}

func (c *client) listRooms() {
	msgs, err := c.fetchMessages()
	if err != nil {
		cli.ErrConnectionFailed(c.baseURL, "", err).Print()
		return
	}

	rooms := map[string]bool{statemachine.GeneralRoom: true}
	for _, m := range msgs {
		switch m["type"] {
		case "room_add":
			if room, ok := m["room"].(string); ok {
				rooms[room] = true
			}
		case "room_delete":
			if room, ok := m["room"].(string); ok && room != statemachine.GeneralRoom {
				delete(rooms, room)
			}
		}
	}

	t := cli.NewTable("room")
	for room := range rooms {
		t.AddRow(room)
	}
	t.Print()
}

func (c *client) printStatus() {
	resp, err := c.http.Get(c.baseURL + "/status")
	if err != nil {
		cli.ErrConnectionFailed(c.baseURL, "", err).Print()
		return
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		cli.PrintError("failed to parse status: %v", err)
		return
	}

	cli.KeyValue("Node ID", fmt.Sprint(status["node_id"]), 14)
	cli.KeyValue("Role", fmt.Sprint(status["role"]), 14)
	cli.KeyValue("Term", fmt.Sprint(status["term"]), 14)
	cli.KeyValue("Leader", fmt.Sprint(status["leader_id"]), 14)
	cli.KeyValue("Commit Index", fmt.Sprint(status["commit_index"]), 14)
	cli.KeyValue("Last Applied", fmt.Sprint(status["last_applied"]), 14)
	cli.KeyValue("Log Length", fmt.Sprint(status["log_length"]), 14)
}
