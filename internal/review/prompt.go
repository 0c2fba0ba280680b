// Package review drives the multi-stage review workflow: it plans work
// units, builds prompts, invokes the review client per unit, validates the
// structured findings it returns, and aggregates the final report.
package review

import (
	"fmt"
	"strings"

	"github.com/seanblong/localreview/pkg/models"
)

// focusDescriptions maps review-focus keys to per-language prompt lines.
var focusDescriptions = map[string]map[string]string{
	"security": {
		"ja": "セキュリティ脆弱性（SQLインジェクション、XSS、バッファオーバーフロー等）",
		"en": "Security vulnerabilities (SQL injection, XSS, buffer overflow, etc.)",
	},
	"performance": {
		"ja": "パフォーマンスの問題（不要なループ、メモリリーク、非効率なアルゴリズム等）",
		"en": "Performance issues (unnecessary loops, memory leaks, inefficient algorithms, etc.)",
	},
	"pep8": {
		"ja": "PEP8コーディング規約の違反（Pythonファイルのみ）",
		"en": "PEP8 coding standard violations (Python files only)",
	},
	"ros2": {
		"ja": "ROS2固有の問題（ノードの設計、トピック/サービスの使用方法、ライフサイクル管理等）",
		"en": "ROS2-specific issues (node design, topic/service usage, lifecycle management, etc.)",
	},
	"bugs": {
		"ja": "潜在的なバグとロジックエラー",
		"en": "Potential bugs and logic errors",
	},
	"maintainability": {
		"ja": "保守性（コードの可読性、複雑度、ドキュメンテーション等）",
		"en": "Maintainability (code readability, complexity, documentation, etc.)",
	},
	"general": {
		"ja": "一般的なコード品質の問題",
		"en": "General code quality issues",
	},
}

// FocusKeys are the accepted review-focus values.
func FocusKeys() []string {
	return []string{"security", "performance", "pep8", "ros2", "bugs", "maintainability", "general"}
}

// promptBuilder assembles system and user prompts for work units.
type promptBuilder struct {
	focus    []string
	language string // "en" or "ja"
	system   string // optional custom system prompt
	overview *models.RepoOverview
}

func (b *promptBuilder) systemPrompt() string {
	if b.system != "" {
		return b.system
	}
	if b.language == "ja" {
		return "あなたは優秀なコードレビュアーです。"
	}
	return "You are an expert code reviewer."
}

func (b *promptBuilder) focusInstructions() string {
	var sb strings.Builder
	if b.language == "ja" {
		sb.WriteString("以下の観点でコードをレビューしてください:\n")
	} else {
		sb.WriteString("Review the code focusing on the following aspects:\n")
	}
	for _, focus := range b.focus {
		if desc, ok := focusDescriptions[focus]; ok {
			sb.WriteString("- " + desc[b.language] + "\n")
		}
	}
	return sb.String()
}

// overviewSection renders the shared repository overview, or nothing when
// the overview is disabled.
func (b *promptBuilder) overviewSection() string {
	if b.overview.Empty() {
		return ""
	}
	var sb strings.Builder
	if b.language == "ja" {
		sb.WriteString("プロジェクト概要（共有コンテキスト）:\n")
	} else {
		sb.WriteString("Project overview (shared context):\n")
	}
	for _, path := range b.overview.Paths {
		sb.WriteString("### " + path + "\n")
		sb.WriteString(b.overview.Excerpts[path])
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (b *promptBuilder) header(path, language string) string {
	if b.language == "ja" {
		return fmt.Sprintf("ファイル: %s\n言語: %s\n", path, language)
	}
	return fmt.Sprintf("File: %s\nLanguage: %s\n", path, language)
}

// responseFormat instructs the model to answer with the exact JSON schema
// the validator accepts. withFile adds the per-finding file attribution
// required for batch responses.
func (b *promptBuilder) responseFormat(withFile bool) string {
	fileField := ""
	if withFile {
		fileField = `"file": "<relative path>", `
	}
	if b.language == "ja" {
		return fmt.Sprintf(`以下の正確なJSON形式でのみ応答してください:
{
  "reviews": [
    {%s"line": <行番号またはnull>, "severity": "error|warning|info", "risk_score": <1-10>, "message": "詳細なメッセージ"},
    ...
  ],
  "summary": "全体的な評価の簡潔な要約"
}

行番号を正確に指定し、明確で実行可能なフィードバックを提供してください。
すべてのメッセージは日本語で記述してください。`, fileField)
	}
	return fmt.Sprintf(`Respond ONLY with a valid JSON object in this exact format:
{
  "reviews": [
    {%s"line": <line_number or null>, "severity": "error|warning|info", "risk_score": <1-10>, "message": "detailed message"},
    ...
  ],
  "summary": "brief overall assessment"
}

Be specific about line numbers and provide clear, actionable feedback.`, fileField)
}

// filePrompt builds the user prompt for a whole single file.
func (b *promptBuilder) filePrompt(rec models.FileRecord, content string) string {
	var sb strings.Builder
	sb.WriteString(b.overviewSection())
	sb.WriteString(b.header(rec.Path, rec.Language))
	sb.WriteString("\n```\n" + content + "\n```\n\n")
	sb.WriteString(b.focusInstructions())
	sb.WriteString("\n")
	sb.WriteString(b.responseFormat(false))
	return sb.String()
}

// chunkPrompt builds the user prompt for one chunk of an oversized file.
// Line numbers in the response are chunk-relative and translated back by
// the caller.
func (b *promptBuilder) chunkPrompt(language string, ch models.Chunk) string {
	var sb strings.Builder
	sb.WriteString(b.overviewSection())
	sb.WriteString(b.header(ch.Path, language))
	if b.language == "ja" {
		sb.WriteString(fmt.Sprintf("行: %d-%d（チャンク %d/%d）\n", ch.StartLine, ch.EndLine, ch.Index+1, ch.TotalChunks))
	} else {
		sb.WriteString(fmt.Sprintf("Lines: %d-%d (chunk %d of %d)\n", ch.StartLine, ch.EndLine, ch.Index+1, ch.TotalChunks))
	}
	sb.WriteString("\n```\n" + ch.Text + "\n```\n\n")
	sb.WriteString(b.focusInstructions())
	sb.WriteString("\n")
	sb.WriteString(b.responseFormat(false))
	return sb.String()
}

// batchFileDelimiter marks per-file boundaries inside a batch payload so
// the responder can attribute findings.
const batchFileDelimiter = "==== FILE: %s (%s) ===="

// batchPrompt builds the user prompt for a batch, delimiting each file.
func (b *promptBuilder) batchPrompt(batch *models.Batch, contents map[string]string) string {
	var sb strings.Builder
	sb.WriteString(b.overviewSection())
	if b.language == "ja" {
		sb.WriteString(fmt.Sprintf("関連する%d個のファイルをまとめてレビューしてください。各所見には必ず \"file\" フィールドで対象ファイルを指定してください。\n\n", len(batch.Files)))
	} else {
		sb.WriteString(fmt.Sprintf("Review the following %d related files together. Every finding MUST name its file in the \"file\" field.\n\n", len(batch.Files)))
	}
	for _, f := range batch.Files {
		sb.WriteString(fmt.Sprintf(batchFileDelimiter, f.Path, f.Language))
		sb.WriteString("\n```\n" + contents[f.Path] + "\n```\n\n")
	}
	sb.WriteString(b.focusInstructions())
	sb.WriteString("\n")
	sb.WriteString(b.responseFormat(true))
	return sb.String()
}
