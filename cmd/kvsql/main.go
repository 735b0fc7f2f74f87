// Package main provides kvsql, an interactive shell for the SQL engine.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/bobboyms/kvsql/pkg/kv"
	"github.com/bobboyms/kvsql/pkg/logdb"
	"github.com/bobboyms/kvsql/pkg/sql"
)

func main() {
	var (
		path    = pflag.String("path", "kvsql_data/db.log", "caminho do arquivo de log")
		memory  = pflag.Bool("memory", false, "usa engine em memória (sem persistência)")
		compact = pflag.Bool("compact", false, "compacta o log ao abrir")
	)
	pflag.Parse()

	if err := run(*path, *memory, *compact); err != nil {
		fmt.Fprintf(os.Stderr, "kvsql: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, memory, compact bool) error {
	var eng kv.Engine
	var err error

	if memory {
		eng = kv.NewMemoryEngine()
	} else if compact {
		eng, err = logdb.OpenCompacted(path, logdb.DefaultOptions())
	} else {
		eng, err = logdb.Open(path, logdb.DefaultOptions())
	}
	if err != nil {
		return err
	}

	engine, err := sql.NewKVEngine(eng)
	if err != nil {
		eng.Close()
		return err
	}
	defer engine.Close()

	session := sql.NewSession(engine)
	defer session.Close()

	return repl(session, memory, path)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kvsql_history")
}

func repl(session *sql.Session, memory bool, path string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile()); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	if memory {
		fmt.Println("kvsql - in-memory session")
	} else {
		fmt.Printf("kvsql - %s\n", path)
	}
	fmt.Println("Type SQL statements, or 'exit' to quit.")
	fmt.Println()

	for {
		input, err := line.Prompt("kvsql> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println("Bye!")
			return nil
		}

		result, err := session.Execute(input)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(result)
	}
}

func printResult(result sql.ResultSet) {
	switch r := result.(type) {
	case sql.CreateTableResult:
		fmt.Printf("CREATE TABLE %s\n", r.Name)
	case sql.InsertResult:
		fmt.Printf("INSERT %d\n", r.Count)
	case sql.TxnResult:
		fmt.Println(r.Action)
	case sql.ScanResult:
		fmt.Println(strings.Join(r.Columns, " | "))
		for _, row := range r.Rows {
			cells := make([]string, len(row))
			for i, field := range row {
				if field.Value == nil {
					cells[i] = "NULL"
				} else {
					cells[i] = fmt.Sprintf("%v", field.Value)
				}
			}
			fmt.Println(strings.Join(cells, " | "))
		}
		fmt.Printf("(%d rows)\n", len(r.Rows))
	default:
		fmt.Printf("%v\n", result)
	}
}
