package main

import (
	"bgprices/cmd/bgprices/commands"
	"bgprices/internal/components/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
