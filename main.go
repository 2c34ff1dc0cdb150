package main

import "newsletterbot/internal/app"

func main() {
	app.Main()
}
