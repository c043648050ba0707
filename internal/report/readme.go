package report

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

var readmeTemplate = template.Must(template.New("readme").Funcs(template.FuncMap{
	"percent": percent,
	"join":    strings.Join,
}).Parse(`# {{.Strategy}} 回测报告

## 策略概述
- **回测期间**: {{.Parameters.StartDate}} 至 {{.Parameters.EndDate}}
- **初始资金**: {{printf "%.0f" .Parameters.InitialCapital}}元
- **选股范围**: {{if .Parameters.Prefixes}}{{join .Parameters.Prefixes ", "}}{{else}}全市场{{end}}{{if .Parameters.ExcludeRiskFlag}}（排除ST）{{end}}
- **最低价格**: {{.Parameters.MinPrice}}元
- **最低市值**: {{printf "%.0f" .Parameters.MinMarketCap}}元 ({{.Parameters.CapBasis}})
- **选股指标**: {{.Parameters.Metric}} {{.Parameters.Direction}}
- **选股数量**: {{.Parameters.Count}}只
- **调仓频率**: 月度
- **手续费率**: {{.Parameters.TransactionCost}}

## 核心业绩指标
| 指标 | 数值 |
|---|---|
| 总收益率 | {{percent .Summary.TotalReturn}} |
| 年化收益率 | {{percent .Summary.AnnualizedReturn}} |
| 年化波动率 | {{percent .Summary.Volatility}} |
| 夏普比率 | {{printf "%.2f" .Summary.SharpeRatio}} |
| 索提诺比率 | {{printf "%.2f" .Summary.SortinoRatio}} |
| 最大回撤 | {{percent .Summary.MaxDrawdown}} |
| 胜率 | {{percent .Summary.WinRate}} |
| 最终净值 | {{printf "%.4f" .Summary.FinalNAV}} |
| 调仓次数 | {{.Summary.Periods}} |
| 降级期数 | {{.Summary.DegradedPeriods}} |
{{if .Aborted}}
> 回测被中断，结果仅包含已完成的期数。
{{end}}
## 策略逻辑
1. 每月最后一个交易日生成快照并按条件过滤股票池
2. 按 {{.Parameters.Metric}} 排序，选择前{{.Parameters.Count}}只股票
3. 等额分配资金，按每手{{.Parameters.LotSize}}股向下取整，不足一手按一手买入
4. 下月第一个交易日以开盘价调仓
{{- if eq .Parameters.Metric "ttm_pe"}}

## TTM PE计算方法
TTM EPS = 最近一期报告 + (上年年报 - 上年同期报告)
TTM PE = 当前股价 / TTM EPS
{{- end}}

## 文件说明
- ` + "`backtest_results.xlsx`" + `: 详细回测数据
- ` + "`nav_chart.html`" + `: 净值走势图
- ` + "`nav.parquet`, `holdings.parquet`" + `: 净值与持仓明细
- ` + "`result.json`" + `: 完整结果
- ` + "`README.md`" + `: 本报告文件
`))

// WriteReadme writes the markdown summary
func WriteReadme(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := readmeTemplate.Execute(&buf, doc); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
