// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cockroachdb/chunkwire"
	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/datanode"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/internal/compression"
	"github.com/cockroachdb/chunkwire/internal/randvar"
	"github.com/cockroachdb/chunkwire/master"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/chunkwire/wire"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

const (
	minLatency = 10 * time.Microsecond
	maxLatency = 10 * time.Second
	// benchBatchRows is the number of rows timed as one operation.
	benchBatchRows = 1000
)

var benchConfig struct {
	nodes             int
	dcs               int
	kill              int
	tables            int
	rows              int
	valueSize         string
	blockSize         int
	chunkSize         int64
	compression       string
	checksum          string
	replicationFactor int
	optionsFile       string
	store             string
	bucket            string
	root              string
	minioEndpoint     string
	minioAccessKey    string
	minioSecretKey    string
	minioSecure       bool
	dynamoTable       string
	sampleInterval    time.Duration
	seed              uint64
	verbose           bool
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "benchmarks",
}

var benchWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "write sorted tables through an in-process cluster of storage nodes",
	Long: `
Write --tables tables concurrently, each through its own table writer. Every
chunk is replicated to the storage nodes, persisted into the selected object
store and confirmed to the master.
`,
	Args: cobra.NoArgs,
	RunE: runBenchWrite,
}

func init() {
	benchCmd.AddCommand(benchWriteCmd)
	f := benchWriteCmd.Flags()
	f.IntVar(&benchConfig.nodes, "nodes", 3, "number of storage nodes")
	f.IntVar(&benchConfig.dcs, "dcs", 2, "number of data centers the nodes are spread over")
	f.IntVar(&benchConfig.kill, "kill", 0, "number of nodes that are down from the start")
	f.IntVarP(&benchConfig.tables, "tables", "c", 4, "number of tables written concurrently")
	f.IntVarP(&benchConfig.rows, "rows", "n", 100000, "number of rows per table")
	f.StringVar(&benchConfig.valueSize, "value-size", "64",
		"size of the value column: N or uniform:MIN-MAX")
	f.IntVar(&benchConfig.blockSize, "block-size", chunkwire.DefaultBlockSize, "rowset block size")
	f.Int64Var(&benchConfig.chunkSize, "chunk-size", 64<<20, "desired compressed chunk size")
	f.StringVar(&benchConfig.compression, "compression", "snappy", "block compression: none, snappy, zstd, minlz or lz4")
	f.StringVar(&benchConfig.checksum, "checksum", "crc32c", "block checksum: none, crc32c or xxhash64")
	f.IntVar(&benchConfig.replicationFactor, "replication-factor", 0, "nodes per chunk (0 means all nodes)")
	f.StringVar(&benchConfig.optionsFile, "options", "", "INI options file; explicit flags override it")
	f.StringVar(&benchConfig.store, "store", "mem", "object store: mem, s3 or minio")
	f.StringVar(&benchConfig.bucket, "bucket", "", "bucket of the s3 or minio store")
	f.StringVar(&benchConfig.root, "root", "chunkwire-bench", "object name prefix within the bucket")
	f.StringVar(&benchConfig.minioEndpoint, "minio-endpoint", "localhost:9000", "minio endpoint")
	f.StringVar(&benchConfig.minioAccessKey, "minio-access-key", "minioadmin", "minio access key")
	f.StringVar(&benchConfig.minioSecretKey, "minio-secret-key", "minioadmin", "minio secret key")
	f.BoolVar(&benchConfig.minioSecure, "minio-secure", false, "use TLS for minio")
	f.StringVar(&benchConfig.dynamoTable, "dynamo-table", "", "confirm chunks into this DynamoDB table instead of memory")
	f.DurationVar(&benchConfig.sampleInterval, "sample-interval", time.Second, "throughput sampling interval")
	f.Uint64Var(&benchConfig.seed, "seed", 1, "random seed for values")
	f.BoolVarP(&benchConfig.verbose, "verbose", "v", false, "log chunk and node events")
}

func benchOptions(cmd *cobra.Command) (*chunkwire.Options, error) {
	opts := &chunkwire.Options{}
	if benchConfig.optionsFile != "" {
		data, err := os.ReadFile(benchConfig.optionsFile)
		if err != nil {
			return nil, err
		}
		if err := opts.Parse(string(data)); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	useFlag := func(name string) bool {
		return benchConfig.optionsFile == "" || flags.Changed(name)
	}
	if useFlag("block-size") {
		opts.BlockSize = benchConfig.blockSize
	}
	if useFlag("chunk-size") {
		opts.DesiredChunkSize = benchConfig.chunkSize
	}
	if useFlag("compression") {
		c, err := compression.ParseAlgorithm(benchConfig.compression)
		if err != nil {
			return nil, err
		}
		opts.SetCompression(c)
	}
	if useFlag("checksum") {
		t, err := wire.ParseChecksumType(benchConfig.checksum)
		if err != nil {
			return nil, err
		}
		opts.SetChecksumType(t)
	}
	if len(opts.Schema.Columns) == 0 {
		opts.Schema = row.Schema{Columns: []row.ColumnSchema{
			{Name: "key", Type: row.TypeInt64, SortOrder: row.Ascending},
			{Name: "value", Type: row.TypeString},
		}}
	}
	opts.Logger = base.NoopLogger{}
	if benchConfig.verbose {
		opts.Logger = base.DefaultLogger
	}
	opts.Replication.Logger = opts.Logger
	opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func benchStore(ctx context.Context) (chunkstore.Store, error) {
	switch benchConfig.store {
	case "mem":
		return nil, nil
	case "s3":
		return chunkstore.NewS3StoreFromEnv(ctx, chunkstore.S3Options{
			Bucket: benchConfig.bucket,
			Root:   benchConfig.root,
		})
	case "minio":
		if benchConfig.bucket == "" {
			return nil, errors.New("--bucket must be set for the minio store")
		}
		client, err := chunkstore.DialMinio(benchConfig.minioEndpoint,
			benchConfig.minioAccessKey, benchConfig.minioSecretKey, benchConfig.minioSecure)
		if err != nil {
			return nil, err
		}
		return chunkstore.NewMinioStore(client, benchConfig.bucket, benchConfig.root), nil
	}
	return nil, errors.Newf("unknown store %q", benchConfig.store)
}

func benchConfirmer(ctx context.Context) (master.Confirmer, error) {
	if benchConfig.dynamoTable == "" {
		return master.NewMemConfirmer(), nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	return master.NewDynamoConfirmer(dynamodb.NewFromConfig(cfg), benchConfig.dynamoTable), nil
}

// benchStats collects the results of the writers.
type benchStats struct {
	rows  atomic.Int64
	bytes atomic.Int64
	mu    struct {
		sync.Mutex
		latency *hdrhistogram.Histogram
		chunks  []base.Confirmation
	}
}

func (s *benchStats) recordBatch(rows, bytes int, elapsed time.Duration) {
	s.rows.Add(int64(rows))
	s.bytes.Add(int64(bytes))
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mu.latency.RecordValue(elapsed.Nanoseconds())
}

func (s *benchStats) recordChunks(chunks []base.Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.chunks = append(s.mu.chunks, chunks...)
}

func benchValue(rng *rand.Rand, buf []byte) []byte {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	// Half of the value is random, the rest repeats it so that blocks
	// compress.
	n := len(buf) / 2
	for i := 0; i < n; i++ {
		buf[i] = letters[rng.Intn(len(letters))]
	}
	for i := n; i < len(buf); i++ {
		buf[i] = buf[i-n]
	}
	return buf
}

func writeTable(
	ctx context.Context,
	table int,
	factory chunkwire.ChunkWriterFactory,
	confirmer master.Confirmer,
	opts *chunkwire.Options,
	stats *benchStats,
) error {
	w, err := chunkwire.NewTableWriter(factory, confirmer, opts)
	if err != nil {
		return err
	}
	defer w.Cancel()

	rng := rand.New(rand.NewSource(benchConfig.seed + uint64(table)))
	valueSize, err := randvar.Parse(benchConfig.valueSize, rng)
	if err != nil {
		return err
	}
	value := make([]byte, valueSize.Max())
	values := make([]row.Value, 2)
	for start := 0; start < benchConfig.rows; start += benchBatchRows {
		end := min(start+benchBatchRows, benchConfig.rows)
		begin := time.Now()
		var bytes int
		for i := start; i < end; i++ {
			values[0] = row.Int64Value(int64(i), 0)
			values[1] = row.StringValue(benchValue(rng, value[:valueSize.Uint64()]), 1)
			r := row.MakeRow(values...)
			bytes += r.ByteSize()
			if err := w.WriteRow(ctx, r); err != nil {
				return errors.Wrapf(err, "table %d", errors.Safe(table))
			}
		}
		stats.recordBatch(end-start, bytes, time.Since(begin))
	}
	if err := w.Close(ctx); err != nil {
		return errors.Wrapf(err, "table %d", errors.Safe(table))
	}
	stats.recordChunks(w.Chunks())
	return nil
}

// sampleThroughput records the rows written per second every interval until
// stop is closed.
func sampleThroughput(stats *benchStats, interval time.Duration, stop <-chan struct{}) []float64 {
	var samples []float64
	t := time.NewTicker(interval)
	defer t.Stop()
	last, lastTime := int64(0), time.Now()
	for {
		select {
		case <-stop:
			return samples
		case now := <-t.C:
			rows := stats.rows.Load()
			samples = append(samples, float64(rows-last)/now.Sub(lastTime).Seconds())
			last, lastTime = rows, now
		}
	}
}

func runBenchWrite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if benchConfig.kill >= benchConfig.nodes {
		return errors.Newf("cannot kill %d of %d nodes", benchConfig.kill, benchConfig.nodes)
	}
	opts, err := benchOptions(cmd)
	if err != nil {
		return err
	}
	store, err := benchStore(ctx)
	if err != nil {
		return err
	}
	confirmer, err := benchConfirmer(ctx)
	if err != nil {
		return err
	}

	cluster := datanode.NewCluster(benchConfig.nodes, benchConfig.dcs, datanode.Options{
		Store:  store,
		Logger: opts.Logger,
	})
	for i := 0; i < benchConfig.kill; i++ {
		cluster.Kill(benchConfig.nodes - 1 - i)
	}
	factory := chunkwire.NewReplicationFactory(cluster.Descriptors(), cluster, opts)
	factory.ReplicationFactor = benchConfig.replicationFactor

	stats := &benchStats{}
	stats.mu.latency = hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1)

	stop := make(chan struct{})
	samplesCh := make(chan []float64, 1)
	go func() { samplesCh <- sampleThroughput(stats, benchConfig.sampleInterval, stop) }()

	start := time.Now()
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < benchConfig.tables; i++ {
		table := i
		g.Go(func() error {
			return writeTable(gCtx, table, factory, confirmer, opts, stats)
		})
	}
	err = g.Wait()
	elapsed := time.Since(start)
	close(stop)
	samples := <-samplesCh
	err = errors.CombineErrors(err, cluster.Close())
	if err != nil {
		return err
	}

	printBenchResults(cmd.OutOrStdout(), stats, elapsed, samples)
	return nil
}

func printBenchResults(out io.Writer, stats *benchStats, elapsed time.Duration, samples []float64) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	var compressed, uncompressed int64
	for _, c := range stats.mu.chunks {
		compressed += c.Meta.CompressedSize
		uncompressed += c.Meta.UncompressedSize
	}
	rows := stats.rows.Load()
	h := stats.mu.latency
	ms := func(v int64) string {
		return fmt.Sprintf("%.1f", time.Duration(v).Seconds()*1000)
	}

	tbl := tablewriter.NewWriter(out)
	tbl.SetHeader([]string{"tables", "chunks", "rows", "data", "compressed", "elapsed",
		"rows/sec", "MB/sec", "p50(ms)", "p95(ms)", "p99(ms)", "pMax(ms)"})
	tbl.Append([]string{
		fmt.Sprint(benchConfig.tables),
		fmt.Sprint(len(stats.mu.chunks)),
		string(crhumanize.Count(rows, crhumanize.Compact)),
		string(crhumanize.Bytes(uncompressed, crhumanize.Compact, crhumanize.OmitI)),
		string(crhumanize.Bytes(compressed, crhumanize.Compact, crhumanize.OmitI)),
		elapsed.Truncate(time.Millisecond).String(),
		fmt.Sprintf("%.0f", float64(rows)/elapsed.Seconds()),
		fmt.Sprintf("%.1f", float64(stats.bytes.Load())/(1<<20)/elapsed.Seconds()),
		ms(h.ValueAtQuantile(50)),
		ms(h.ValueAtQuantile(95)),
		ms(h.ValueAtQuantile(99)),
		ms(h.Max()),
	})
	tbl.Render()

	if len(samples) > 1 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, asciigraph.Plot(samples, asciigraph.Height(10),
			asciigraph.Caption("rows/sec")))
	}
}
