package main

import (
	"polwatch-backend/cmd/polwatch-cli/commands"
	"polwatch-backend/internal/components/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
