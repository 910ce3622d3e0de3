// cmd/qba/main.go
package main

import (
	"qba/internal/app"
	"qba/internal/appshell"
)

func main() {
	appshell.Main(app.RunContext)
}
