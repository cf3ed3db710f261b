package main

import (
	"os"

	chatcmder "github.com/papercomputeco/picochat/cmd/picochat/chat"
	mergecmder "github.com/papercomputeco/picochat/cmd/picochat/merge"
	tapescmder "github.com/papercomputeco/picochat/cmd/picochat/tapes"
)

func main() {
	cmd := chatcmder.NewChatCmd()
	cmd.AddCommand(
		tapescmder.NewTapesCmd(),
		mergecmder.NewMergeCmd(),
	)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
