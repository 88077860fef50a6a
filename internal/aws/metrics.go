package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes custom CloudWatch metrics under one namespace.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics recorder. A nil client yields a recorder that drops data.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records an occurrence count.
func (m *Metrics) Count(ctx context.Context, name string, n float64) error {
	return m.put(ctx, name, n, cwtypes.StandardUnitCount)
}

// Amount records a unit-less monetary value.
func (m *Metrics) Amount(ctx context.Context, name string, v float64) error {
	return m.put(ctx, name, v, cwtypes.StandardUnitNone)
}

func (m *Metrics) put(ctx context.Context, name string, v float64, unit cwtypes.StandardUnit) error {
	if m == nil || m.client == nil {
		return nil
	}
	ts := m.nowFunc()
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(name),
				Value:      &v,
				Unit:       unit,
				Timestamp:  &ts,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}
