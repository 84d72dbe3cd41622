// Command telecraftor-echo is left unimplemented: a runnable binary needs
// a concrete telegram.Source/telegram.UpdatesDecoder backed by the real
// generated TL schema, which is an external collaborator out of scope
// for this module (spec.md §1). Wire telegram.New against that schema's
// client to build one.
package main

func main() {}
