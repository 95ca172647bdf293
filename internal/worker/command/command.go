// Package command はリモートオペレータコマンドのポーリングと実行を提供する。
// ハートビートとコンテンツ同期より短い周期で独立して動作し、
// その失敗は他のループに影響しない。
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/kioskd/internal/metrics"
	"github.com/hitoshi/kioskd/internal/model"
)

// CommandClient はコマンド関連のコントロールプレーン呼び出しのインターフェース。
type CommandClient interface {
	NextCommand(ctx context.Context, deviceID string) (*model.DeviceCommand, error)
	ReportCommandResult(ctx context.Context, deviceID string, result *model.CommandResult) error
}

// Executor は単一コマンド種別の実行関数。
type Executor func(ctx context.Context, cmd *model.DeviceCommand) error

// Runner はコマンドチャンネルのポーラー。
// 保留中のコマンドを取得して実行し、結果をコントロールプレーンへ報告する。
type Runner struct {
	client    CommandClient
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	deviceID  string
	executors map[model.CommandType]Executor
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(client CommandClient, collector metrics.MetricsCollector, logger *slog.Logger, deviceID string) *Runner {
	return &Runner{
		client:    client,
		metrics:   collector,
		logger:    logger,
		deviceID:  deviceID,
		executors: make(map[model.CommandType]Executor),
	}
}

// RegisterExecutor はコマンド種別に対応する実行関数を登録する。
// 起動前（ループ開始前）に呼び出すこと。
func (r *Runner) RegisterExecutor(cmdType model.CommandType, executor Executor) {
	r.executors[cmdType] = executor
}

// Start はコマンドポーリングループを起動する。起動直後に1回実行し、
// 以降はintervalごとに実行する。失敗はログに記録して次の周期でリトライする。
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("コマンドチャンネルを開始しました",
		slog.Duration("interval", interval),
		slog.String("device_id", r.deviceID),
	)

	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("コマンドポーリングに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("コマンドチャンネルを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("コマンドポーリングに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は保留中のコマンドを1件取得して実行し、結果を報告する。
// 保留中のコマンドがない場合は何もしない。
func (r *Runner) RunOnce(ctx context.Context) error {
	cmd, err := r.client.NextCommand(ctx, r.deviceID)
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}

	r.logger.Info("コマンドを受信しました",
		slog.String("command_id", cmd.ID),
		slog.String("command_type", string(cmd.Type)),
	)

	result := r.execute(ctx, cmd)
	r.metrics.RecordCommandExecuted(string(cmd.Type))

	if err := r.client.ReportCommandResult(ctx, r.deviceID, result); err != nil {
		r.logger.Error("コマンド結果の報告に失敗しました",
			slog.String("command_id", cmd.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// execute は登録済みの実行関数でコマンドを実行し、結果を組み立てる。
// 未知のコマンド種別は失敗として報告する（エンジン自体は停止しない）。
func (r *Runner) execute(ctx context.Context, cmd *model.DeviceCommand) *model.CommandResult {
	result := &model.CommandResult{
		CommandID:  cmd.ID,
		ExecutedAt: time.Now(),
	}

	executor, ok := r.executors[cmd.Type]
	if !ok {
		err := model.NewUnknownCommandError(string(cmd.Type))
		r.logger.Error("未知のコマンド種別を受信しました",
			slog.String("command_id", cmd.ID),
			slog.String("command_type", string(cmd.Type)),
		)
		result.Success = false
		result.Message = err.Error()
		return result
	}

	if err := executor(ctx, cmd); err != nil {
		r.logger.Error("コマンドの実行に失敗しました",
			slog.String("command_id", cmd.ID),
			slog.String("command_type", string(cmd.Type)),
			slog.String("error", err.Error()),
		)
		result.Success = false
		result.Message = err.Error()
		return result
	}

	result.Success = true
	return result
}
