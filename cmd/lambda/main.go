package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/pay-theory/ecsbridge"
)

func main() {
	adapter, err := ecsbridge.NewLambdaOptimized()
	if err != nil {
		log.Fatalf("failed to initialize ecsbridge: %v", err)
	}

	lambda.Start(adapter.HandleEvent)
}
