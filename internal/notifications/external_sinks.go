package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/nats-io/nats.go/jetstream"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection is the subset of *mongo.Collection used by MongoSink
type MongoCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoSink archives events as documents
type MongoSink struct {
	collection MongoCollection
}

func NewMongoSink(collection MongoCollection) *MongoSink {
	return &MongoSink{collection: collection}
}

func (s *MongoSink) Name() string { return "mongo" }

func (s *MongoSink) Deliver(ctx context.Context, event *Event) error {
	doc := bson.M{
		"_id":          event.ID.String(),
		"kind":         string(event.Kind),
		"actor":        event.Actor,
		"counterparty": event.Counterparty,
		"credit_id":    int64(event.CreditID),
		"listing_id":   int64(event.ListingID),
		"amount":       event.Amount,
		"price":        event.Price,
		"attributes":   event.Attributes,
		"occurred_at":  event.OccurredAt,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// SNSPublisher is the subset of *sns.Client used by SNSSink
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink fans events out to an SNS topic
type SNSSink struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSSink(client SNSPublisher, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Kind)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// JetStreamPublisher is the subset of jetstream.JetStream used by NATSSink
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSink publishes events to JetStream subjects of the form <prefix>.<kind>
type NATSSink struct {
	js     JetStreamPublisher
	prefix string
}

func NewNATSSink(js JetStreamPublisher, subjectPrefix string) *NATSSink {
	if subjectPrefix == "" {
		subjectPrefix = "market"
	}
	return &NATSSink{js: js, prefix: subjectPrefix}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(kind EventKind) string {
	return s.prefix + "." + string(kind)
}

func (s *NATSSink) Deliver(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// The message id lets the stream drop redelivered duplicates
	if _, err := s.js.Publish(ctx, s.Subject(event.Kind), data, jetstream.WithMsgID(event.ID.String())); err != nil {
		return fmt.Errorf("jetstream publish: %w", err)
	}
	return nil
}

// ElasticSink indexes events for search, keyed by event id
type ElasticSink struct {
	transport esapi.Transport
	index     string
}

// NewElasticSink accepts any esapi.Transport; *elasticsearch.Client satisfies it
func NewElasticSink(transport esapi.Transport, index string) *ElasticSink {
	if index == "" {
		index = "market-events"
	}
	return &ElasticSink{transport: transport, index: index}
}

func (s *ElasticSink) Name() string { return "elasticsearch" }

func (s *ElasticSink) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: event.ID.String(),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch index: %s: %s", res.Status(), strings.TrimSpace(string(detail)))
	}
	return nil
}

// DynamoPutter is the subset of *dynamodb.Client used by DynamoSink
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type dynamoEventRecord struct {
	EventID    string `dynamodbav:"event_id"`
	Kind       string `dynamodbav:"kind"`
	Actor      string `dynamodbav:"actor,omitempty"`
	CreditID   uint64 `dynamodbav:"credit_id,omitempty"`
	ListingID  uint64 `dynamodbav:"listing_id,omitempty"`
	Amount     int64  `dynamodbav:"amount,omitempty"`
	Price      int64  `dynamodbav:"price,omitempty"`
	Payload    string `dynamodbav:"payload"`
	OccurredAt string `dynamodbav:"occurred_at"`
}

// DynamoSink writes events to a DynamoDB table keyed by event_id
type DynamoSink struct {
	client DynamoPutter
	table  string
}

func NewDynamoSink(client DynamoPutter, table string) *DynamoSink {
	return &DynamoSink{client: client, table: table}
}

func (s *DynamoSink) Name() string { return "dynamodb" }

func (s *DynamoSink) Deliver(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	item, err := attributevalue.MarshalMap(dynamoEventRecord{
		EventID:    event.ID.String(),
		Kind:       string(event.Kind),
		Actor:      event.Actor,
		CreditID:   event.CreditID,
		ListingID:  event.ListingID,
		Amount:     event.Amount,
		Price:      event.Price,
		Payload:    string(payload),
		OccurredAt: event.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshal dynamodb item: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}
	return nil
}

// EmailSender is the subset of *sesv2.Client used by IssueMailSink
type EmailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// IssueMailSink emails the moderation address when an issue is reported
type IssueMailSink struct {
	client EmailSender
	from   string
	to     []string
}

func NewIssueMailSink(client EmailSender, from string, to []string) *IssueMailSink {
	return &IssueMailSink{client: client, from: from, to: to}
}

func (s *IssueMailSink) Name() string { return "issue-mail" }

func (s *IssueMailSink) Accepts(kind EventKind) bool {
	return kind == EventIssueReported
}

func (s *IssueMailSink) Deliver(ctx context.Context, event *Event) error {
	description, _ := event.Attributes["description"].(string)
	subject := "Issue reported for credit " + strconv.FormatUint(event.CreditID, 10)
	body := fmt.Sprintf("Reporter: %s\nCredit: %d\nReported at: %s\n\n%s\n",
		event.Actor, event.CreditID, event.OccurredAt.Format("2006-01-02 15:04:05 MST"), description)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &sestypes.Destination{ToAddresses: s.to},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
