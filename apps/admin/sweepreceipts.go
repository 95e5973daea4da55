package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) sweepReceipts(afterID, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	n, last, err := cli.receipts.RenderPending(ctx, afterID, limit)
	if err != nil {
		return err
	}
	fmt.Printf("%d receipt(s) rendered, continue with -after %d\n", n, last)
	return nil
}
