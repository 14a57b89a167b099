package main

import "github.com/vietddude/librarian/internal/cli"

func main() {
	cli.Execute()
}
