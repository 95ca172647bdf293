package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun はエージェントモード（3ループ＋管理サーバー）で起動することを示す。
	CommandRun Command = "run"
	// CommandPurge はキャッシュパージを1回実行して終了することを示す。
	CommandPurge Command = "purge"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "run":
		return CommandRun
	case "purge":
		return CommandPurge
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandRun
	}
}
