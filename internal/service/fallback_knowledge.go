package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/temasamo/tea-diagnosis/internal/models"
)

// ruleEntry maps condition keywords to a tea pairing. This is the static
// knowledge used when the embedding path is unavailable or retrieval comes
// back empty; it guarantees the user always gets a complete answer.
type ruleEntry struct {
	keywords  []string
	teas      []string
	reason    string
	sweetener string
	snack     string
	timing    string
	brewing   string
}

var ruleEntries = []ruleEntry{
	{
		keywords:  []string{"眠", "寝", "快眠", "リラックス", "夜"},
		teas:      []string{"カモミール", "ルイボス"},
		reason:    "ノンカフェインで、やさしく心を落ち着けたいときにぴったりです。",
		sweetener: "はちみつ",
		snack:     "ようかん",
		timing:    "就寝の1時間ほど前",
		brewing:   "熱湯で3〜5分、ゆっくり蒸らしてください。",
	},
	{
		keywords:  []string{"集中", "仕事", "勉強"},
		teas:      []string{"煎茶", "抹茶"},
		reason:    "適度なカフェインとテアニンで、シャキッとしたいときに向いています。",
		sweetener: "黒糖",
		snack:     "ナッツ",
		timing:    "午前中や作業のはじめ",
		brewing:   "70〜80度のお湯で1分ほど、さっと淹れてください。",
	},
	{
		keywords:  []string{"デトックス", "すっきり", "むくみ"},
		teas:      []string{"レモングラスブレンド", "はと麦茶"},
		reason:    "すっきり整えたい日に飲みやすいブレンドです。",
		sweetener: "ステビア",
		snack:     "フルーツ",
		timing:    "朝の水分補給に",
		brewing:   "熱湯で3分ほど蒸らしてください。",
	},
	{
		keywords:  []string{"ダイエット", "脂", "食事"},
		teas:      []string{"ウーロン茶", "プーアル茶"},
		reason:    "すっきりとした飲み口で、食事と一緒に楽しみやすいお茶です。",
		sweetener: "なし（そのまま）",
		snack:     "干し梅",
		timing:    "食事中や食後",
		brewing:   "熱湯で30秒〜1分、濃いめに淹れてください。",
	},
	{
		keywords:  []string{"疲れ", "疲労", "しんど", "だる"},
		teas:      []string{"黒豆茶", "ほうじ茶"},
		reason:    "香ばしくやさしい味わいで、疲れた体をいたわるのに向いています。",
		sweetener: "はちみつ",
		snack:     "大福",
		timing:    "ひと息つきたい午後",
		brewing:   "熱湯で2〜3分蒸らしてください。",
	},
	{
		keywords:  []string{"風邪", "免疫"},
		teas:      []string{"緑茶", "柚子ブレンド"},
		reason:    "カテキンを含み、体調を整えたい時期の定番です。",
		sweetener: "はちみつ",
		snack:     "和菓子",
		timing:    "朝晩の温かい一杯に",
		brewing:   "80度ほどのお湯で1〜2分淹れてください。",
	},
}

// generalTeas is the rotation used when the matched rule's teas are all
// excluded already, so a multi-turn session never repeats a suggestion.
var generalTeas = []string{
	"ほうじ茶", "ペパーミント", "緑茶", "ルイボス", "カモミール",
	"ウーロン茶", "煎茶", "プーアル茶", "黒豆茶", "紅茶",
}

// RuleBasedStrategy recommends from the static keyword table. It needs no
// external calls, never fails, and therefore always reports itself available.
type RuleBasedStrategy struct{}

func NewRuleBasedStrategy() *RuleBasedStrategy {
	return &RuleBasedStrategy{}
}

func (s *RuleBasedStrategy) Name() string { return "rule-based" }

func (s *RuleBasedStrategy) Available() bool { return true }

func (s *RuleBasedStrategy) Suggest(_ context.Context, condition string, _ []models.ScoredArticle, excludeTeas []string) (*models.Suggestion, error) {
	rule := matchRule(condition)
	tea := pickTea(rule.teas, excludeTeas)

	return &models.Suggestion{
		Tea:       tea,
		Reason:    rule.reason,
		Sweetener: rule.sweetener,
		Snack:     rule.snack,
		Timing:    rule.timing,
		Brewing:   rule.brewing,
	}, nil
}

// RecommendText renders a short free-text recommendation, used as the last
// resort for the unstructured quick-diagnosis response.
func (s *RuleBasedStrategy) RecommendText(condition string) string {
	rule := matchRule(condition)
	tea := pickTea(rule.teas, nil)
	return fmt.Sprintf(
		"【簡易提案】「%s」はいかがでしょうか。%s 甘味料は%s、お茶菓子には%sがよく合います。おすすめのタイミングは%sです。",
		tea, rule.reason, rule.sweetener, rule.snack, rule.timing,
	)
}

func matchRule(condition string) ruleEntry {
	for _, rule := range ruleEntries {
		for _, kw := range rule.keywords {
			if strings.Contains(condition, kw) {
				return rule
			}
		}
	}
	// Default pairing when nothing matched.
	return ruleEntry{
		teas:      []string{"ほうじ茶", "ペパーミント"},
		reason:    "香ばしく飲みやすいので、まずは気分転換の一杯にどうぞ。",
		sweetener: "はちみつ",
		snack:     "お好みの和菓子",
		timing:    "ほっとしたいとき",
		brewing:   "熱湯で2〜3分蒸らしてください。",
	}
}

func pickTea(candidates, exclude []string) string {
	excluded := func(tea string) bool {
		for _, e := range exclude {
			if e == tea {
				return true
			}
		}
		return false
	}

	for _, tea := range candidates {
		if !excluded(tea) {
			return tea
		}
	}
	for _, tea := range generalTeas {
		if !excluded(tea) {
			return tea
		}
	}
	return candidates[0]
}
