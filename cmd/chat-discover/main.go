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
chat-discover - chatraft node discovery tool

Discovers chatraft nodes on the local network using mDNS (Bonjour/Avahi),
so a new node can bootstrap its peers list without a hardcoded
configuration file. Two modes:

    chat-discover                         # discover peers (5 second timeout)
    chat-discover --advertise --node-id n0 --http-port 8080 --raft-port 8081
                                           # advertise this node and block
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	version   = "1.0.0"
	copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	service   = "_chatraft._tcp"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

// discoveredNode mirrors one mDNS service entry for a chatraft peer.
type discoveredNode struct {
	NodeID   string `json:"node_id"`
	HTTPAddr string `json:"http_addr"`
	RaftAddr string `json:"raft_addr"`
}

func main() {
	advertise := flag.Bool("advertise", false, "Advertise this node instead of discovering peers")
	nodeID := flag.String("node-id", "", "Node ID to advertise (required with --advertise)")
	httpPort := flag.Int("http-port", 0, "HTTP port to advertise")
	raftPort := flag.Int("raft-port", 0, "RAFT port to advertise")
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output peer raft addresses (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output peer raft addresses (for scripting)")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// The mdns library logs IPv6 lookup errors on many hosts; they are
	// not actionable, so route them away from stderr.
	log.SetOutput(io.Discard)

	if *advertise {
		if *nodeID == "" || *httpPort == 0 || *raftPort == 0 {
			fmt.Fprintln(os.Stderr, "--advertise requires --node-id, --http-port and --raft-port")
			os.Exit(1)
		}
		runAdvertise(*nodeID, *httpPort, *raftPort)
		return
	}

	if !*quiet && !*jsonOutput {
		printBanner()
		fmt.Printf("%s%sℹ%s Scanning for chatraft nodes on the network (timeout: %ds)...\n\n",
			cyan, bold, reset, *timeout)
	}

	nodes, err := discoverNodes(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "%s%s✗%s Discovery failed: %v\n", red, bold, reset, err)
		}
		os.Exit(1)
	}

	if len(nodes) == 0 {
		if !*quiet && !*jsonOutput {
			fmt.Printf("%s%s⚠%s No chatraft nodes found on the network.\n\n", yellow, bold, reset)
		}
		os.Exit(0)
	}

	switch {
	case *jsonOutput:
		outputJSON(nodes)
	case *quiet:
		outputQuiet(nodes)
	default:
		outputHuman(nodes)
	}
}

// runAdvertise registers this node's mDNS service and blocks until
// interrupted.
func runAdvertise(nodeID string, httpPort, raftPort int) {
	info := []string{
		"http_port=" + strconv.Itoa(httpPort),
		"raft_port=" + strconv.Itoa(raftPort),
	}
	svc, err := mdns.NewMDNSService(nodeID, service, "", "", raftPort, nil, info)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build mdns service: %v\n", err)
		os.Exit(1)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mdns server: %v\n", err)
		os.Exit(1)
	}
	defer server.Shutdown()

	fmt.Printf("%s%s✓%s advertising node %s (http=%d raft=%d)\n", green, bold, reset, nodeID, httpPort, raftPort)
	select {}
}

func discoverNodes(timeout time.Duration) ([]discoveredNode, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	var nodes []discoveredNode
	done := make(chan struct{})

	go func() {
		for entry := range entriesCh {
			raftAddr := fmt.Sprintf("%s:%d", entry.AddrV4, entry.Port)
			httpAddr := ""
			for _, field := range entry.InfoFields {
				if strings.HasPrefix(field, "http_port=") {
					httpAddr = fmt.Sprintf("%s:%s", entry.AddrV4, strings.TrimPrefix(field, "http_port="))
				}
			}
			nodes = append(nodes, discoveredNode{
				NodeID:   entry.Name,
				RaftAddr: raftAddr,
				HTTPAddr: httpAddr,
			})
		}
		close(done)
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: service,
		Domain:  "local",
		Timeout: timeout,
		Entries: entriesCh,
	})
	close(entriesCh)
	<-done
	return nodes, err
}

func printBanner() {
	fmt.Println()
	fmt.Printf("%s%s", cyan, bold)
	fmt.Println("   ___ _           _             __ _")
	fmt.Println("  / __| |_  __ _ _| |_ _ _ __ _ / _| |_")
	fmt.Println(" | (__| ' \\/ _` |  _| '_/ _` |  _|  _|")
	fmt.Println("  \\___|_||_\\__,_|\\__|_| \\__,_|_|  \\__|")
	fmt.Printf("%s\n", reset)
	fmt.Printf("  %s%schat-discover%s %sv%s%s\n", green, bold, reset, dim, version, reset)
	fmt.Printf("  %sNetwork Node Discovery Tool%s\n\n", dim, reset)
}

func printVersion() {
	fmt.Println()
	fmt.Printf("  %s%schat-discover%s %sv%s%s\n", cyan, bold, reset, dim, version, reset)
	fmt.Printf("  %s%s%s\n\n", dim, copyright, reset)
}

func printUsage() {
	printBanner()
	fmt.Printf("%sUsage:%s chat-discover [options]\n\n", bold, reset)
	fmt.Printf("%s%sOPTIONS%s\n\n", bold, cyan, reset)
	fmt.Printf("    %s--advertise%s            Advertise this node instead of discovering\n", green, reset)
	fmt.Printf("    %s--node-id%s <id>         Node ID to advertise\n", green, reset)
	fmt.Printf("    %s--http-port%s <port>     HTTP port to advertise\n", green, reset)
	fmt.Printf("    %s--raft-port%s <port>     RAFT port to advertise\n", green, reset)
	fmt.Printf("    %s--timeout%s <seconds>    Discovery timeout (default: 5)\n", green, reset)
	fmt.Printf("    %s--json%s                Output results as JSON\n", green, reset)
	fmt.Printf("    %s--quiet%s, %s-q%s           Only output raft addresses (for scripting)\n", green, reset, green, reset)
	fmt.Printf("    %s--version%s, %s-v%s         Show version information\n", green, reset, green, reset)
	fmt.Printf("    %s--help%s, %s-h%s            Show this help message\n\n", green, reset, green, reset)
}

func outputJSON(nodes []discoveredNode) {
	data, _ := json.MarshalIndent(nodes, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(nodes []discoveredNode) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.RaftAddr
	}
	fmt.Println(strings.Join(addrs, ","))
}

func outputHuman(nodes []discoveredNode) {
	fmt.Printf("%s%s✓%s Found %d chatraft node(s)\n\n", green, bold, reset, len(nodes))
	for i, n := range nodes {
		fmt.Printf("  %s[%d]%s %s%s%s\n", dim, i+1, reset, bold+cyan, n.NodeID, reset)
		fmt.Printf("      %sRaft Address:%s %s\n", dim, reset, n.RaftAddr)
		if n.HTTPAddr != "" {
			fmt.Printf("      %sHTTP Address:%s %s\n", dim, reset, n.HTTPAddr)
		}
	}
	fmt.Println()
}
