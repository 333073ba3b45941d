package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const (
	logBatchSize     = 100
	logFlushInterval = 2 * time.Second
	logBufferSize    = 1024
)

// logPutter is the slice of the CloudWatch Logs API the writer needs.
type logPutter interface {
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsClient ships log lines to a CloudWatch Logs stream in
// batches. It implements io.Writer so it can be tee'd into the zap logger;
// Write never blocks on the network and drops lines when the buffer is full.
type CloudWatchLogsClient struct {
	client        logPutter
	logGroupName  string
	logStreamName string

	mu      sync.RWMutex
	closed  bool
	events  chan types.InputLogEvent
	done    chan struct{}
	dropped atomic.Int64
}

// NewCloudWatchLogsClient creates the log group (if missing) and a fresh
// stream named after the service and start time, then starts the flusher.
func NewCloudWatchLogsClient(ctx context.Context, cfg sdkaws.Config, serviceName, logGroupName string) (*CloudWatchLogsClient, error) {
	if logGroupName == "" {
		logGroupName = "/ecommerce/services"
	}
	api := cloudwatchlogs.NewFromConfig(cfg)
	streamName := fmt.Sprintf("%s-%d", serviceName, time.Now().Unix())

	if err := ensureLogGroup(ctx, api, logGroupName); err != nil {
		return nil, fmt.Errorf("failed to ensure log group: %w", err)
	}
	if _, err := api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  sdkaws.String(logGroupName),
		LogStreamName: sdkaws.String(streamName),
	}); err != nil {
		return nil, fmt.Errorf("failed to create log stream: %w", err)
	}

	return newLogsWriter(api, logGroupName, streamName, logFlushInterval), nil
}

func newLogsWriter(api logPutter, group, stream string, interval time.Duration) *CloudWatchLogsClient {
	c := &CloudWatchLogsClient{
		client:        api,
		logGroupName:  group,
		logStreamName: stream,
		events:        make(chan types.InputLogEvent, logBufferSize),
		done:          make(chan struct{}),
	}
	go c.run(interval)
	return c
}

func ensureLogGroup(ctx context.Context, api *cloudwatchlogs.Client, group string) error {
	_, err := api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: sdkaws.String(group)})
	var existsErr *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &existsErr) {
		return err
	}
	if _, err := api.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    sdkaws.String(group),
		RetentionInDays: sdkaws.Int32(30),
	}); err != nil {
		return fmt.Errorf("failed to set retention policy: %w", err)
	}
	return nil
}

// Write queues p as one log event. Lines written after Close are dropped.
func (c *CloudWatchLogsClient) Write(p []byte) (int, error) {
	event := types.InputLogEvent{
		Message:   sdkaws.String(string(p)),
		Timestamp: sdkaws.Int64(time.Now().UnixMilli()),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return len(p), nil
	}
	select {
	case c.events <- event:
	default:
		c.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped reports how many lines were discarded.
func (c *CloudWatchLogsClient) Dropped() int64 {
	return c.dropped.Load()
}

// Close flushes queued events and stops the flusher.
func (c *CloudWatchLogsClient) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
	<-c.done
	return nil
}

func (c *CloudWatchLogsClient) run(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]types.InputLogEvent, 0, logBatchSize)
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= logBatchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(batch)
			batch = batch[:0]
		}
	}
}

// flush ships batch; errors go to stderr since the logger is the caller.
func (c *CloudWatchLogsClient) flush(batch []types.InputLogEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  sdkaws.String(c.logGroupName),
		LogStreamName: sdkaws.String(c.logStreamName),
		LogEvents:     append([]types.InputLogEvent(nil), batch...),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "CloudWatch write error: %v\n", err)
	}
}
