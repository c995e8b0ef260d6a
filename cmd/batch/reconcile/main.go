package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/casa25-portal/internal/app"
	"github.com/uma-arai/casa25-portal/internal/common/config"
	"github.com/uma-arai/casa25-portal/internal/common/logger"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/service/batch"
	"github.com/uma-arai/casa25-portal/internal/service/turnover"
)

const projectName = "casa25-reconcile"

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	if !config.IsLocal() {
		if flag.NArg() == 0 {
			panic("task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	cfg, err := config.LoadConfig(taskToken)
	if err != nil {
		panic(err)
	}

	zl := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zl.Sync()
	log := logger.For(zl, logger.ComponentReconcileJob)

	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000",
			ServiceVersion: cfg.Cache.Version,
		}); err != nil {
			log.Warnw("Failed to configure X-Ray, using defaults", "error", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalw("Failed to configure default X-Ray settings", "error", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	var sfnClient *sfn.Client
	var turnoverClient turnover.SFNClient
	var reporter batch.TaskReporter
	if !config.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatalw("Failed to load AWS config", "error", err)
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
		turnoverClient = sfnClient
		reporter = sfnClient
	}
	notifier := turnover.NewNotifier(turnoverClient, cfg.SFN.StateMachineARN, logger.For(zl, logger.ComponentTurnover))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)
		utils.AddMetadata(seg, "timeout", timeout.String())
	}

	components, err := app.Build(ctx, cfg, zl, notifier)
	if err != nil {
		log.Fatalw("Failed to build reconcile job", "error", err)
	}
	defer components.Close()

	service := batch.NewReconcileBatchService(components.State, components.Scheduler, reporter, cfg.SFN.TaskToken, config.IsLocal(), log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, *timeout, service.Run)
	}()

	select {
	case sig := <-sigChan:
		log.Infow("Received signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err == nil {
			log.Infow("Batch process completed successfully")
			return
		}
		log.Errorw("Batch process failed", "error", err)

		// ローカル環境以外の場合のみStep Functionsのエラー通知を行う
		if reporter != nil {
			if _, sendErr := sfnClient.SendTaskFailure(context.Background(), &sfn.SendTaskFailureInput{
				TaskToken: aws.String(taskToken),
				Error:     aws.String("ReconcileFailed"),
				Cause:     aws.String(err.Error()),
			}); sendErr != nil {
				log.Errorw("Failed to send task failure", "error", sendErr)
			}
		}
		components.Close()
		os.Exit(1)
	}
}
