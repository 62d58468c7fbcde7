// Package telemetry はOpenTelemetryのトレースとメトリクスを設定します。
//
// 既定では無効で、その場合はno-opプロバイダを使います。
//
//	OTEL_ENABLED=true   テレメトリを有効化
//	OTEL_STDOUT=true    スパンとメトリクスを標準エラー出力に書き出す
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "redminetogithub"

var shutdownFns []func(context.Context) error

// Options はテレメトリの設定です
type Options struct {
	Enabled     bool
	Stdout      bool
	ServiceName string
	Version     string
	// Writer は出力先です（nilの場合は標準エラー出力）
	Writer io.Writer
}

// Init はプロバイダを設定します。無効の場合はno-opプロバイダを設定してすぐに返ります
func Init(ctx context.Context, opts Options) error {
	if !opts.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.Version),
	)

	tp, err := buildTraceProvider(res, w, opts.Stdout)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := buildMetricProvider(res, w)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	return nil
}

func buildTraceProvider(res *resource.Resource, w io.Writer, pretty bool) (*sdktrace.TracerProvider, error) {
	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exp, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
	), nil
}

func buildMetricProvider(res *resource.Resource, w io.Writer) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))),
	), nil
}

// Tracer はトレーサを返します
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter はメーターを返します
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown は未送信のスパンとメトリクスを書き出してプロバイダを終了します
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}

// Counters は移行処理のカウンタです
type Counters struct {
	Migrated  metric.Int64Counter
	Skipped   metric.Int64Counter
	Resubmits metric.Int64Counter
}

// NewCounters はカウンタを作成します
func NewCounters(meter metric.Meter) (*Counters, error) {
	migrated, err := meter.Int64Counter("rm2gh.issues.migrated",
		metric.WithDescription("移行したイシュー数"))
	if err != nil {
		return nil, err
	}
	skipped, err := meter.Int64Counter("rm2gh.issues.skipped",
		metric.WithDescription("移行済みのためスキップしたイシュー数"))
	if err != nil {
		return nil, err
	}
	resubmits, err := meter.Int64Counter("rm2gh.import.resubmits",
		metric.WithDescription("インポートジョブの再登録回数"))
	if err != nil {
		return nil, err
	}

	return &Counters{Migrated: migrated, Skipped: skipped, Resubmits: resubmits}, nil
}
