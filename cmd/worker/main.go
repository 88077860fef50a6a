package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/app"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		rlog.Criticalf("[worker] invalid configuration: %v", err)
		os.Exit(1)
	}
	clients, err := aws.NewAWSClients(ctx, cfg.Region, cfg.EndpointOverride)
	if err != nil {
		rlog.Criticalf("[worker] failed to init aws clients: %v", err)
		os.Exit(1)
	}

	stores := app.NewStores(cfg, clients.DynamoDB)
	p := NewProcessor(stores.Carts, aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace))

	// If RUN_LOCAL=true, process a single event body for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"type":"order.placed","user_id":"1","order_id":"1","product_ids":["1"],"amount":20}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := p.Handle(ctx, event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			rlog.Criticalf("[worker] local handler error: %v failures=%v", err, resp.BatchItemFailures)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
