// Command agentmemd runs the conversational memory engine.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/agentmem/cmd/agentmemd/app"

	// Blank-imported so each provider registers itself with the embed/llm
	// registries on init. The resource initializer looks variants up by
	// name at build time; nothing else references these packages directly.
	_ "github.com/kart-io/agentmem/internal/memory/embed/ollama"
	_ "github.com/kart-io/agentmem/internal/memory/embed/openai"
	_ "github.com/kart-io/agentmem/internal/memory/llm/ollama"
	_ "github.com/kart-io/agentmem/internal/memory/llm/openai"
)

func main() {
	app.NewApp().Run()
}
