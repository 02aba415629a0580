package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"signalflow/logger"
)

// StartCloudWatchPublisher periodically pushes the counter snapshot to
// CloudWatch. The logger package owns the CloudWatch client; publishing is a
// no-op until logger.InitCloudWatch has run.
func StartCloudWatchPublisher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				publishSnapshot(ctx)
			}
		}
	}()
}

func publishSnapshot(ctx context.Context) {
	snapshot := Snapshot()

	data := make([]cwtypes.MetricDatum, 0, len(snapshot))
	for name, value := range snapshot {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("SF-" + name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(value)),
		})
	}

	logger.PublishMetrics(ctx, data)
}
