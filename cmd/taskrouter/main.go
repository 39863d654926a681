// Command taskrouter serves and talks to the conversational task router.
package main

func main() {
	Execute()
}
