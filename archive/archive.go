package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "signalflow/config"
	"signalflow/logger"
	"signalflow/models"
)

// ParquetSignal is the on-disk layout of one archived signal.
type ParquetSignal struct {
	SignalID        int64   `parquet:"name=signal_id, type=INT64"`
	ChannelName     string  `parquet:"name=channel_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenSymbol     string  `parquet:"name=token_symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	SignalType      string  `parquet:"name=signal_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sentiment       string  `parquet:"name=sentiment, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceAtSignal   float64 `parquet:"name=price_at_signal, type=DOUBLE"`
	ConfidenceScore float64 `parquet:"name=confidence_score, type=DOUBLE"`
	MessageText     string  `parquet:"name=message_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceivedAt      int64   `parquet:"name=received_at, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// upload is one parquet payload waiting for an S3 worker.
type upload struct {
	key  string
	data []byte
}

// Archiver drains signals from the stream dispatcher, batches them in memory
// and flushes each batch to S3 as a parquet file on a fixed interval.
type Archiver struct {
	config      *appconfig.Config
	signalCh    <-chan models.Signal
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      []models.Signal
	flushTicker *time.Ticker
	uploadCh    chan upload
}

// NewArchiver constructs the archiver and its S3 client. Callers should only
// build one when both the archive and S3 storage are enabled.
func NewArchiver(cfg *appconfig.Config, signalCh <-chan models.Signal) (*Archiver, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archiver").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	a := &Archiver{
		config:   cfg,
		signalCh: signalCh,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("signal archiver initialized")

	return a, nil
}

// Start launches the collect and flush workers.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting signal archiver")

	interval := a.config.Archive.FlushInterval.Std()
	if interval <= 0 {
		interval = time.Minute
	}
	a.flushTicker = time.NewTicker(interval)

	workers := a.config.Archive.MaxWorkers
	if workers <= 0 {
		workers = 2
	}
	a.uploadCh = make(chan upload, workers*2)

	a.wg.Add(2)
	go a.collectWorker()
	go a.flushWorker()

	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.uploadWorker(i)
	}

	log.WithFields(logger.Fields{"upload_workers": workers}).Info("signal archiver started successfully")
	return nil
}

// Stop terminates the workers after a final flush.
func (a *Archiver) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	a.log.WithComponent("archiver").Info("stopping signal archiver")
	a.wg.Wait()
	a.log.WithComponent("archiver").Info("signal archiver stopped")
}

func (a *Archiver) collectWorker() {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"worker": "collect"})

	for {
		select {
		case <-a.ctx.Done():
			log.Info("collect worker stopped due to context cancellation")
			return
		case sig, ok := <-a.signalCh:
			if !ok {
				log.Info("signal channel closed, collect worker stopping")
				return
			}
			a.addSignal(sig)
		}
	}
}

func (a *Archiver) addSignal(sig models.Signal) {
	a.mu.Lock()
	a.buffer = append(a.buffer, sig)
	a.mu.Unlock()
}

func (a *Archiver) flushWorker() {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-a.ctx.Done():
			a.flush("shutdown")
			close(a.uploadCh)
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-a.flushTicker.C:
			a.flush("interval")
		}
	}
}

func (a *Archiver) flush(reason string) {
	a.mu.Lock()
	signals := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(signals) == 0 {
		return
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"batch_id":     batchID,
		"record_count": len(signals),
		"reason":       reason,
	})
	log.Info("flushing signal batch")

	// One parquet file per token so objects land under token partitions.
	for token, group := range groupByToken(signals) {
		data, err := a.createParquetFile(group, now)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"token": token}).Error("failed to create parquet file")
			continue
		}
		a.uploadCh <- upload{key: a.generateKey(token, now, batchID), data: data}
	}
}

func groupByToken(signals []models.Signal) map[string][]models.Signal {
	groups := make(map[string][]models.Signal)
	for _, sig := range signals {
		if sig.TokenSymbol == "" {
			continue
		}
		groups[sig.TokenSymbol] = append(groups[sig.TokenSymbol], sig)
	}
	return groups
}

func (a *Archiver) uploadWorker(id int) {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"worker": "upload", "worker_id": id})

	for u := range a.uploadCh {
		if err := a.uploadToS3(u.key, u.data); err != nil {
			log.WithError(err).
				WithEnv("S3_BUCKET").
				WithFields(logger.Fields{"bucket": a.config.Storage.S3.Bucket, "s3_key": u.key}).
				Error("failed to upload to S3")
			continue
		}

		logger.IncrementArchiveWrite(int64(len(u.data)))
		log.WithFields(logger.Fields{
			"s3_key":    u.key,
			"file_size": len(u.data),
		}).Info("signal batch archived")
	}
}

// generateKey builds the partitioned object key for one token's slice of a
// batch flushed at ts.
func (a *Archiver) generateKey(token string, ts time.Time, batchID string) string {
	parts := []string{}
	if a.config.Storage.S3.Prefix != "" {
		parts = append(parts, a.config.Storage.S3.Prefix)
	}
	parts = append(parts,
		fmt.Sprintf("token=%s", token),
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("signals_%s_%s.parquet", ts.Format("20060102150405"), batchID),
	)
	return path.Join(parts...)
}

// toRecords filters out entries without a token symbol and converts the rest
// to the parquet layout. Optional prices default to zero.
func toRecords(signals []models.Signal, receivedAt time.Time) []ParquetSignal {
	records := make([]ParquetSignal, 0, len(signals))
	for _, sig := range signals {
		if sig.TokenSymbol == "" {
			continue
		}
		rec := ParquetSignal{
			SignalID:        sig.ID,
			ChannelName:     sig.ChannelName,
			TokenSymbol:     sig.TokenSymbol,
			SignalType:      sig.SignalType,
			Sentiment:       sig.Sentiment,
			ConfidenceScore: sig.ConfidenceScore,
			MessageText:     sig.MessageText,
			ReceivedAt:      receivedAt.UnixMilli(),
		}
		if sig.PriceAtSignal != nil {
			rec.PriceAtSignal = *sig.PriceAtSignal
		}
		records = append(records, rec)
	}
	return records
}

func (a *Archiver) createParquetFile(signals []models.Signal, now time.Time) ([]byte, error) {
	records := toRecords(signals, now)
	if len(records) == 0 {
		return nil, fmt.Errorf("no archivable records in batch")
	}

	mfw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(mfw, new(ParquetSignal), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			return nil, fmt.Errorf("write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}

	return mfw.Bytes(), nil
}

func (a *Archiver) uploadToS3(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.config.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
