package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/planner"
)

func newDragCmd() *cobra.Command {
	var (
		flagSrcDevice      string
		flagDstDevice      string
		flagDst            string
		flagMove           bool
		flagDirConflict    string
		flagFileConflict   string
		flagReplaceDirFile string
		flagForce          bool
	)

	cmd := &cobra.Command{
		Use:   "drag <src-path>... --dst <dst-path>",
		Short: "Plan and execute a drag-and-drop gesture",
		Long: `Plan a batch of ops moving or copying one or more source nodes onto a
destination parent directory, applying the configured conflict policies,
then drain that batch through a short-lived executor.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			srcDevice := deviceFromFlag(flagSrcDevice)
			dstDevice := deviceFromFlag(flagDstDevice)

			dragOp := planner.DragCopy
			if flagMove {
				dragOp = planner.DragMove
			}

			dirPolicy, err := parseDirConflictPolicy(flagDirConflict)
			if err != nil {
				return err
			}

			filePolicy, err := parseFileConflictPolicy(flagFileConflict)
			if err != nil {
				return err
			}

			replacePolicy, err := parseReplaceDirWithFilePolicy(flagReplaceDirFile)
			if err != nil {
				return err
			}

			return runDrag(cmd.Context(), cc, args, flagDst, srcDevice, dstDevice, dragOp, dirPolicy, filePolicy, replacePolicy, flagForce)
		},
	}

	cmd.Flags().StringVar(&flagDst, "dst", "", "destination parent directory path (required)")
	cmd.Flags().StringVar(&flagSrcDevice, "src-device", "local", "source device: local|remote")
	cmd.Flags().StringVar(&flagDstDevice, "dst-device", "local", "destination device: local|remote")
	cmd.Flags().BoolVar(&flagMove, "move", false, "move instead of copy")
	cmd.Flags().StringVar(&flagDirConflict, "dir-conflict", "rename", "skip|replace|rename|merge")
	cmd.Flags().StringVar(&flagFileConflict, "file-conflict", "rename-if-different", "skip|replace-always|replace-if-older|rename-always|rename-if-older|rename-if-different")
	cmd.Flags().StringVar(&flagReplaceDirFile, "replace-dir-with-file", "fail", "fail|follow-file-policy")
	cmd.Flags().BoolVar(&flagForce, "force", false, "override the big-batch safety guard")
	cmd.MarkFlagRequired("dst") //nolint:errcheck // cobra validates at parse time

	return cmd
}

func deviceFromFlag(s string) node.DeviceUID {
	if s == "remote" {
		return node.DeviceGDrive
	}

	return node.DeviceLocalDisk
}

func runDrag(ctx context.Context, cc *CLIContext, srcPaths []string, dst string, srcDevice, dstDevice node.DeviceUID,
	dragOp planner.DragOp, dirPolicy planner.DirConflictPolicy, filePolicy planner.FileConflictPolicy,
	replacePolicy planner.ReplaceDirWithFilePolicy, force bool) error {
	engine, err := NewEngine(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	srcNodes := make([]node.Node, 0, len(srcPaths))
	for _, p := range srcPaths {
		n, err := engine.ResolveByPath(ctx, srcDevice, p)
		if err != nil {
			return err
		}
		srcNodes = append(srcNodes, n)
	}

	dstNode, err := engine.ResolveByPath(ctx, dstDevice, dst)
	if err != nil {
		return err
	}

	p, err := engine.Planner(srcDevice, dstDevice)
	if err != nil {
		return err
	}

	req := planner.Request{
		BatchUID:                 uuid.NewString(),
		SrcNodes:                 srcNodes,
		DstParent:                dstNode,
		DragOp:                   dragOp,
		DirConflictPolicy:        dirPolicy,
		FileConflictPolicy:       filePolicy,
		ReplaceDirWithFilePolicy: replacePolicy,
		SrcNodeMovePolicy:        planner.DeleteSrcIfNotSkipped,
	}

	batch, err := p.Plan(ctx, req)
	if err != nil {
		return fmt.Errorf("planning batch: %w", err)
	}

	cc.Statusf("planned %d ops in batch %s\n", len(batch.OpList), batch.BatchUID)

	if err := engine.RunBatchToCompletion(ctx, batch, force); err != nil {
		return fmt.Errorf("draining batch: %w", err)
	}

	cc.Statusf("batch %s complete\n", batch.BatchUID)

	return nil
}

func parseDirConflictPolicy(s string) (planner.DirConflictPolicy, error) {
	switch s {
	case "skip":
		return planner.DirSkip, nil
	case "replace":
		return planner.DirReplace, nil
	case "rename":
		return planner.DirRename, nil
	case "merge":
		return planner.DirMerge, nil
	case "prompt":
		return planner.DirPrompt, nil
	default:
		return 0, fmt.Errorf("invalid --dir-conflict %q", s)
	}
}

func parseFileConflictPolicy(s string) (planner.FileConflictPolicy, error) {
	switch s {
	case "skip":
		return planner.FileSkip, nil
	case "replace-always":
		return planner.FileReplaceAlways, nil
	case "replace-if-older":
		return planner.FileReplaceIfOlderAndDifferent, nil
	case "rename-always":
		return planner.FileRenameAlways, nil
	case "rename-if-older":
		return planner.FileRenameIfOlderAndDifferent, nil
	case "rename-if-different":
		return planner.FileRenameIfDifferent, nil
	case "prompt":
		return planner.FilePrompt, nil
	default:
		return 0, fmt.Errorf("invalid --file-conflict %q", s)
	}
}

func parseReplaceDirWithFilePolicy(s string) (planner.ReplaceDirWithFilePolicy, error) {
	switch s {
	case "fail":
		return planner.ReplaceDirWithFileFail, nil
	case "prompt":
		return planner.ReplaceDirWithFilePrompt, nil
	case "follow-file-policy":
		return planner.ReplaceDirWithFileFollowFilePolicy, nil
	default:
		return 0, fmt.Errorf("invalid --replace-dir-with-file %q", s)
	}
}
