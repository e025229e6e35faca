package statistics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

type CloudWatchClient struct {
	api CloudWatchAPI
}

func NewCloudWatchClient(api CloudWatchAPI) *CloudWatchClient {
	return &CloudWatchClient{api: api}
}

func (c *CloudWatchClient) GetStatistics(ctx context.Context, q StatisticsQuery) ([]Datapoint, error) {
	dims := make([]types.Dimension, 0, len(q.Dimensions))
	for _, d := range q.Dimensions {
		dims = append(dims, types.Dimension{Name: aws.String(d.Name), Value: aws.String(d.Value)})
	}

	out, err := c.api.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(q.Namespace),
		MetricName: aws.String(q.MetricName),
		StartTime:  aws.Time(q.Start),
		EndTime:    aws.Time(q.End),
		Period:     aws.Int32(int32(q.Period.Seconds())),
		Statistics: []types.Statistic{types.Statistic(q.Statistic)},
		Dimensions: dims,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %s statistics: %w", q.MetricName, q.Statistic, err)
	}

	points := make([]Datapoint, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		points = append(points, Datapoint{
			Timestamp: aws.ToTime(dp.Timestamp),
			Value:     statisticValue(dp, q.Statistic),
		})
	}
	return points, nil
}

func statisticValue(dp types.Datapoint, stat Statistic) float64 {
	switch stat {
	case Sum:
		return aws.ToFloat64(dp.Sum)
	case SampleCount:
		return aws.ToFloat64(dp.SampleCount)
	case Minimum:
		return aws.ToFloat64(dp.Minimum)
	case Maximum:
		return aws.ToFloat64(dp.Maximum)
	default:
		return aws.ToFloat64(dp.Average)
	}
}
