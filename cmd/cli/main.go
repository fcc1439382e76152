package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/idgen"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
	"github.com/aryan0dhankhar/mesledger/internal/service"
	"github.com/aryan0dhankhar/mesledger/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(args)
	case "login":
		err = loginUser(args)
	case "bootstrap":
		err = bootstrap()
	case "dashboard":
		err = dashboard()
	case "reports":
		err = reports(args)
	case "records":
		err = handleRecords(args)
	case "tools":
		err = listTools(args)
	case "issue":
		err = issueTool(args)
	case "return":
		err = returnTool(args)
	case "restock":
		err = restockTool(args)
	case "users":
		err = handleUsers(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: mesctl auth <login|logout|who|password>")
		return nil
	}

	switch args[0] {
	case "login":
		return loginUser(args[1:])
	case "logout":
		_ = os.Remove(tokenFile())
		fmt.Println("✓ Logged out")
		return nil
	case "who":
		return whoAmI()
	case "password":
		return changePassword(args[1:])
	}
	return fmt.Errorf("unknown auth command: %s", args[0])
}

func handleRecords(args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: mesctl records <list|get|create|update|code> <kind> [id] [options]")
		return nil
	}

	sub, kind := args[0], args[1]
	switch sub {
	case "list":
		return listRecords(kind, args[2:])
	case "get":
		if len(args) < 3 {
			return errors.New("usage: mesctl records get <kind> <id>")
		}
		var doc map[string]any
		if err := call(http.MethodGet, "/records/"+kind+"/"+args[2], nil, &doc); err != nil {
			return err
		}
		return printJSON(doc)
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		data := fs.String("data", "", "record as a JSON object")
		_ = fs.Parse(args[2:])
		var doc map[string]any
		if err := call(http.MethodPost, "/records/"+kind, json.RawMessage(*data), &doc); err != nil {
			return err
		}
		return printJSON(doc)
	case "update":
		if len(args) < 3 {
			return errors.New("usage: mesctl records update <kind> <id> -data '{...}'")
		}
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		data := fs.String("data", "", "fields to change as a JSON object")
		_ = fs.Parse(args[3:])
		var doc map[string]any
		if err := call(http.MethodPatch, "/records/"+kind+"/"+args[2], json.RawMessage(*data), &doc); err != nil {
			return err
		}
		return printJSON(doc)
	case "code":
		var out map[string]string
		if err := call(http.MethodPost, "/codes/"+kind, nil, &out); err != nil {
			return err
		}
		fmt.Println(out["code"])
		return nil
	}
	return fmt.Errorf("unknown records command: %s", sub)
}

func handleUsers(args []string) error {
	if len(args) < 1 || args[0] == "list" {
		var out struct {
			Users []service.UserView `json:"users"`
		}
		if err := call(http.MethodGet, "/users", nil, &out); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tEMAIL\tROLE\tACTIVE")
		for _, u := range out.Users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", u.Username, u.Email, u.Role, u.IsActive)
		}
		return w.Flush()
	}
	if args[0] != "create" {
		return fmt.Errorf("unknown users command: %s", args[0])
	}

	fs := flag.NewFlagSet("users create", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", "Operator", "Admin, Manager, Operator or Storekeeper")
	_ = fs.Parse(args[1:])

	var user service.UserView
	err := call(http.MethodPost, "/users", map[string]string{
		"username": *username, "email": *email, "password": *password, "role": *role,
	}, &user)
	if err != nil {
		return err
	}
	fmt.Printf("✓ User created: %s (%s)\n", user.Username, user.Role)
	return nil
}

// bootstrap seeds the default accounts directly in the configured store.
func bootstrap() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg.LogLevel)
	ids, err := idgen.New(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, closeStore, err := repository.Open(ctx, cfg, ids, log)
	if err != nil {
		return err
	}
	defer closeStore(ctx)

	res, err := service.Bootstrap(ctx, repository.NewUserRepository(store, log), log)
	if err != nil {
		return err
	}
	for _, name := range res.Created {
		fmt.Printf("✓ Created %s (password %s123)\n", name, name)
	}
	for _, name := range res.Skipped {
		fmt.Printf("- %s already exists\n", name)
	}
	return nil
}

// Auth commands
func loginUser(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	if *username == "" || *password == "" {
		fs.PrintDefaults()
		return errors.New("username and password are required")
	}

	var result service.LoginResult
	if err := call(http.MethodPost, "/auth/login", map[string]string{"username": *username, "password": *password}, &result); err != nil {
		return err
	}
	if err := saveToken(result.Token); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as: %s (%s)\n", result.Username, result.Role)
	return nil
}

func whoAmI() error {
	if loadToken() == "" {
		fmt.Println("Not logged in")
		return nil
	}
	var me service.UserView
	if err := call(http.MethodGet, "/auth/me", nil, &me); err != nil {
		return err
	}
	fmt.Printf("✓ %s <%s> role=%s\n", me.Username, me.Email, me.Role)
	return nil
}

func changePassword(args []string) error {
	fs := flag.NewFlagSet("password", flag.ExitOnError)
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password")
	_ = fs.Parse(args)

	err := call(http.MethodPost, "/auth/change-password", map[string]string{
		"old_password": *oldPassword, "new_password": *newPassword,
	}, nil)
	if err != nil {
		return err
	}
	fmt.Println("✓ Password changed")
	return nil
}

// Stats commands
func dashboard() error {
	var d service.DashboardStats
	if err := call(http.MethodGet, "/dashboard", nil, &d); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Open work orders\t%d / %d\n", d.WorkOrdersOpen, d.TotalWorkOrders)
	fmt.Fprintf(w, "Pending inspections\t%d\n", d.PendingInspections)
	fmt.Fprintf(w, "Low stock tools\t%d\n", d.LowStockTools)
	fmt.Fprintf(w, "Active employees\t%d\n", d.ActiveEmployees)
	fmt.Fprintf(w, "Active machines\t%d\n", d.ActiveMachines)
	fmt.Fprintf(w, "Pending purchase orders\t%d\n", d.PendingPurchaseOrders)
	return w.Flush()
}

func reports(args []string) error {
	fs := flag.NewFlagSet("reports", flag.ExitOnError)
	export := fs.String("export", "", "write the xlsx report to this file")
	_ = fs.Parse(args)

	if *export != "" {
		data, err := request(http.MethodGet, "/reports/export", nil)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*export, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("✓ Report written to %s\n", *export)
		return nil
	}

	var r service.ReportStats
	if err := call(http.MethodGet, "/reports", nil, &r); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Completion rate\t%.1f%%\n", r.Production.CompletionRate)
	fmt.Fprintf(w, "Pass rate\t%.1f%%\n", r.Quality.PassRate)
	fmt.Fprintf(w, "Stock health\t%.1f%%\n", r.Inventory.StockHealth)
	fmt.Fprintf(w, "Fulfillment rate\t%.1f%%\n", r.Procurement.FulfillmentRate)
	return w.Flush()
}

// Record commands
func listRecords(kind string, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	filter := fs.String("filter", "", "comma separated field=value filters")
	orderBy := fs.String("order-by", "", "field to sort by")
	desc := fs.Bool("desc", false, "sort descending")
	limit := fs.Int("limit", 0, "page size")
	_ = fs.Parse(args)

	q := url.Values{}
	for _, pair := range strings.Split(*filter, ",") {
		if k, v, ok := strings.Cut(strings.TrimSpace(pair), "="); ok {
			q.Set(k, v)
		}
	}
	if *orderBy != "" {
		q.Set("order_by", *orderBy)
	}
	if *desc {
		q.Set("desc", "true")
	}
	if *limit > 0 {
		q.Set("limit", fmt.Sprint(*limit))
	}

	var page struct {
		Items []map[string]any `json:"items"`
	}
	path := "/records/" + kind
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := call(http.MethodGet, path, nil, &page); err != nil {
		return err
	}
	for _, item := range page.Items {
		line, _ := json.Marshal(item)
		fmt.Println(string(line))
	}
	return nil
}

func listTools(args []string) error {
	_ = args
	var page struct {
		Items []map[string]any `json:"items"`
	}
	if err := call(http.MethodGet, "/records/tools?order_by=tool_code&limit=500", nil, &page); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tNAME\tAVAILABLE\tMIN")
	for _, t := range page.Items {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", t["id"], t["tool_code"], t["name"], t["quantity_available"], t["minimum_stock"])
	}
	return w.Flush()
}

// Ledger commands
func issueTool(args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	tool := fs.String("tool", "", "tool id")
	employee := fs.String("employee", "", "employee id")
	workOrder := fs.String("work-order", "", "work order id (optional)")
	quantity := fs.Int64("quantity", 1, "units to issue")
	_ = fs.Parse(args)

	body := map[string]any{"tool_id": *tool, "employee_id": *employee, "quantity": *quantity}
	if *workOrder != "" {
		body["work_order_id"] = *workOrder
	}
	var iss map[string]any
	if err := call(http.MethodPost, "/issuances", body, &iss); err != nil {
		return err
	}
	fmt.Printf("✓ Issued %v (%v units)\n", iss["issue_number"], iss["quantity_issued"])
	return nil
}

func returnTool(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: mesctl return <issuance-id> -quantity N")
	}
	fs := flag.NewFlagSet("return", flag.ExitOnError)
	quantity := fs.Int64("quantity", 1, "units to return")
	_ = fs.Parse(args[1:])

	var iss map[string]any
	if err := call(http.MethodPost, "/issuances/"+args[0]+"/returns", map[string]any{"quantity": *quantity}, &iss); err != nil {
		return err
	}
	fmt.Printf("✓ %v: %v of %v returned (%v)\n", iss["issue_number"], iss["quantity_returned"], iss["quantity_issued"], iss["status"])
	return nil
}

func restockTool(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: mesctl restock <tool-id> -quantity N")
	}
	fs := flag.NewFlagSet("restock", flag.ExitOnError)
	quantity := fs.Int64("quantity", 1, "units received")
	_ = fs.Parse(args[1:])

	var tool map[string]any
	if err := call(http.MethodPost, "/tools/"+args[0]+"/restock", map[string]any{"quantity": *quantity}, &tool); err != nil {
		return err
	}
	fmt.Printf("✓ %v now has %v units\n", tool["tool_code"], tool["quantity_available"])
	return nil
}

// Helper functions

// call sends body as JSON and decodes a successful response into out.
func call(method, path string, body, out any) error {
	data, err := request(method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func request(method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, getAPIURL()+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			if e.Field != "" {
				return nil, fmt.Errorf("%s (%s): %s", resp.Status, e.Field, e.Error)
			}
			return nil, fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return nil, errors.New(resp.Status)
	}
	return data, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getAPIURL() string {
	if u := os.Getenv("MES_API"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8000/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mesledger", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func printUsage() {
	fmt.Print(`MES ledger CLI

Usage:
  mesctl <command> [options]

Commands:
  auth       Authentication (login, logout, who, password)
  login      Shorthand for auth login
  bootstrap  Seed the default accounts in the configured store
  dashboard  Show dashboard counters
  reports    Show report rates, or -export FILE.xlsx
  records    Generic records (list, get, create, update, code) <kind>
  tools      List tools with stock levels
  issue      Issue tool units to an employee
  return     Return units of an issuance
  restock    Receive tool units into stock
  users      User administration (list, create) - admin only
  help       Show this help message

Environment Variables:
  MES_API    API endpoint (default: http://localhost:8000/api)

Examples:
  mesctl auth login -username storekeeper -password storekeeper123
  mesctl records list work_orders -filter status=Scheduled -order-by due_date
  mesctl issue -tool 1790 -employee 1788 -quantity 2
  mesctl reports -export report.xlsx
`)
}
