package main

import "github.com/Await-d/maple-blog-sub005/cmd/maplemon/commands"

func main() {
	commands.Execute()
}
