package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/app"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/config"
	domain "github.com/imrishuroy/go-storefront/internal/events"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		rlog.Criticalf("[api] invalid configuration: %v", err)
		os.Exit(1)
	}

	clients, err := aws.NewAWSClients(ctx, cfg.Region, cfg.EndpointOverride)
	if err != nil {
		rlog.Criticalf("[api] failed to init aws clients: %v", err)
		os.Exit(1)
	}

	deps := app.Deps{DynamoDB: clients.DynamoDB}
	if cfg.EventsQueueURL != "" {
		deps.Events = aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)
	} else {
		rlog.Warn("[api] EVENTS_QUEUE_URL not set, domain events are dropped")
		deps.Events = domain.Nop{}
	}
	if rc := app.ConnectRedis(ctx, cfg.RedisAddr); rc != nil {
		deps.Redis = rc
	}

	a, err := app.New(cfg, deps)
	if err != nil {
		rlog.Criticalf("[api] %v", err)
		os.Exit(1)
	}
	if err := a.Bootstrap(ctx); err != nil {
		rlog.Criticalf("[api] bootstrap failed: %v", err)
		os.Exit(1)
	}

	// if RUN_LOCAL is set, run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		rlog.Infof("[api] running local server on %s", addr)
		if err := a.Router.Run(addr); err != nil {
			rlog.Criticalf("[api] failed to run local server: %v", err)
			os.Exit(1)
		}
		return
	}

	gin.SetMode(gin.ReleaseMode)

	// lambda adapter
	adapter := ginadapter.New(a.Router)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// ProxyWithContext propagates the Lambda context into the gin request
		return adapter.ProxyWithContext(ctx, req)
	})
}
