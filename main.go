package main

import "github.com/FCJuventus/DoPi-demo/internal/cli"

// @title DoPi API
// @version 1.0
// @description Freelance marketplace backend: job lifecycle and Pi Network payment callbacks.
// @BasePath /
// @securityDefinitions.apikey SessionCookie
// @in cookie
// @name dopi_session
func main() {
	cli.Execute()
}
