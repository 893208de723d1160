// mopcli — локальный REPL для отладки инструментов и промптов
// без Slack: операции исполняются напрямую, без approval workflow.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/integrations"
	"github.com/joe-reitz/oss-moperator/internal/llm"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// В терминале json-логи только мешают
	cfg.Logger.Format = "console"
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	set := integrations.Build(cfg.Integrations, logger)
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}
	agent := llm.NewAgent(provider, cfg.LLM.MaxSteps, cfg.LLM.MaxTokens, logger)
	system := llm.CLISystemPrompt(set.Capabilities())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	fmt.Println("mopcli — type a request, 'tools' to list tools, 'reset' to clear history, 'exit' to quit")

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		case "reset":
			history = nil
			fmt.Println("history cleared")
			continue
		case "tools":
			for _, name := range set.Registry.Names() {
				fmt.Println("  " + name)
			}
			continue
		}

		reply, err := agent.Run(ctx, system, history, line, set.Registry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		history = append(history,
			llm.Message{Role: "user", Content: line},
			llm.Message{Role: "assistant", Content: reply},
		)
		fmt.Println(reply)
	}
}
