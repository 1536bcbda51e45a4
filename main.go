package main

import "github.com/eventpay/payment-events/cmd"

func main() {
	cmd.Execute()
}
