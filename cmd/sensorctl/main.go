// sensorctl is an interactive console for a running sensorlog server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/xtxerr/sensorlog/internal/datastore"
	"github.com/xtxerr/sensorlog/internal/schema"
)

// Version is set at build time via ldflags
var Version = "dev"

var commands = []prompt.Suggest{
	{Text: "tail", Description: "show the most recent readings"},
	{Text: "range", Description: "range [start] [end] - readings between RFC3339 bounds"},
	{Text: "summary", Description: "summary [start] [end] - per-sensor statistics"},
	{Text: "add", Description: "add <type> <id> <value> - submit a reading"},
	{Text: "hello", Description: "check server liveness"},
	{Text: "help", Description: "list commands"},
	{Text: "exit", Description: "leave the console"},
}

type console struct {
	base string
	http *http.Client
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8000", "sensorlog server base URL")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("sensorctl", Version)
		return
	}

	c := &console{
		base: strings.TrimRight(*addr, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}

	// go-prompt leaves the terminal raw when interrupted; snapshot the
	// state up front so we always hand back a sane terminal.
	fd := int(os.Stdin.Fd())
	var saved *term.State
	if term.IsTerminal(fd) {
		saved, _ = term.GetState(fd)
	}
	defer func() {
		if saved != nil {
			term.Restore(fd, saved)
		}
	}()

	fmt.Printf("sensorctl %s connected to %s (type help for commands)\n", Version, c.base)

	for {
		in := strings.TrimSpace(prompt.Input("sensorlog> ", completer))
		if in == "" {
			continue
		}
		args := strings.Fields(in)
		var err error
		switch args[0] {
		case "exit", "quit":
			return
		case "help":
			printHelp()
		case "tail":
			err = c.tail()
		case "range":
			err = c.rangeQuery(args[1:])
		case "summary":
			err = c.summary(args[1:])
		case "add":
			err = c.add(args[1:])
		case "hello":
			err = c.hello()
		default:
			fmt.Printf("unknown command %q (try help)\n", args[0])
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func completer(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	fields := strings.Fields(before)

	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
	}
	if fields[0] != "add" {
		return nil
	}

	pos := len(fields)
	if !strings.HasSuffix(before, " ") {
		pos--
	}
	var suggestions []prompt.Suggest
	switch pos {
	case 1:
		for _, t := range schema.SensorTypes() {
			suggestions = append(suggestions, prompt.Suggest{Text: string(t)})
		}
	case 2:
		for _, id := range schema.SensorIDs() {
			suggestions = append(suggestions, prompt.Suggest{Text: string(id)})
		}
	default:
		return nil
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func printHelp() {
	fmt.Println("commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-8s %s\n", cmd.Text, cmd.Description)
	}
}

// =============================================================================
// Commands
// =============================================================================

func (c *console) tail() error {
	body, err := c.get("/")
	if err != nil {
		return err
	}
	printBody(body)
	return nil
}

func (c *console) rangeQuery(args []string) error {
	q := url.Values{}
	if len(args) > 0 {
		q.Set("start", args[0])
	}
	if len(args) > 1 {
		q.Set("end", args[1])
	}
	path := "/range"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	body, err := c.get(path)
	if err != nil {
		return err
	}
	printBody(body)
	return nil
}

func (c *console) summary(args []string) error {
	q := url.Values{}
	if len(args) > 0 {
		q.Set("start", args[0])
	}
	if len(args) > 1 {
		q.Set("end", args[1])
	}
	path := "/summary"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	body, err := c.get(path)
	if err != nil {
		return err
	}

	var summaries []datastore.Summary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return fmt.Errorf("decode summary response: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("no readings")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Sensor", "ID", "Unit", "Count", "Min", "Max", "Mean", "P50", "P90", "P99"})
	for _, s := range summaries {
		table.Append([]string{
			string(s.Type),
			string(s.ID),
			string(s.Unit),
			strconv.Itoa(s.Count),
			fmt.Sprintf("%.2f", s.Min),
			fmt.Sprintf("%.2f", s.Max),
			fmt.Sprintf("%.2f", s.Mean),
			fmt.Sprintf("%.2f", s.P50),
			fmt.Sprintf("%.2f", s.P90),
			fmt.Sprintf("%.2f", s.P99),
		})
	}
	table.Render()
	return nil
}

func (c *console) add(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: add <type> <id> <value>")
	}
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("parse value %q: %w", args[2], err)
	}

	r := schema.Reading{
		Type:      schema.SensorType(args[0]),
		ID:        schema.SensorID(args[1]),
		Timestamp: time.Now().UTC(),
		Value:     value,
		Unit:      schema.UnitFor(schema.SensorType(args[0])),
	}
	if err := r.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	resp, err := c.http.Post(c.base+"/", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Println("accepted", r.String())
	return nil
}

func (c *console) hello() error {
	body, err := c.get("/helloworld/")
	if err != nil {
		return err
	}
	printBody(body)
	return nil
}

// =============================================================================
// HTTP plumbing
// =============================================================================

func (c *console) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func printBody(body []byte) {
	if len(body) == 0 {
		fmt.Println("(empty)")
		return
	}
	os.Stdout.Write(body)
	if body[len(body)-1] != '\n' {
		fmt.Println()
	}
}
