package report

import (
	"bytes"
	"html/template"
	"os"

	"github.com/goccy/go-json"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

var chartTemplate = template.Must(template.New("chart").Funcs(template.FuncMap{
	"percent": percent,
}).Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>{{.Strategy}} 净值走势</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"></script>
<style>
body { font-family: -apple-system, "PingFang SC", "Microsoft YaHei", sans-serif; margin: 24px; color: #222; }
.params { display: flex; flex-wrap: wrap; gap: 8px 24px; margin-bottom: 16px; }
.param-item { font-size: 14px; color: #555; }
table.metrics { border-collapse: collapse; margin-top: 16px; }
table.metrics td { padding: 4px 12px; border-bottom: 1px solid #eee; }
</style>
</head>
<body>
<h1 id="title">{{.Strategy}}</h1>
<div class="params">
  <div class="param-item">回测期间: {{.Parameters.StartDate}} 至 {{.Parameters.EndDate}}</div>
  <div class="param-item">选股指标: {{.Parameters.Metric}} ({{.Parameters.Direction}})</div>
  <div class="param-item">选股数量: {{.Parameters.Count}}只</div>
  <div class="param-item">手续费率: {{.Parameters.TransactionCost}}</div>
</div>
<canvas id="navChart" width="1200" height="500"></canvas>
<table class="metrics">
  <tr data-metric="total_return"><td>总收益率</td><td>{{percent .Summary.TotalReturn}}</td></tr>
  <tr data-metric="annualized_return"><td>年化收益率</td><td>{{percent .Summary.AnnualizedReturn}}</td></tr>
  <tr data-metric="max_drawdown"><td>最大回撤</td><td>{{percent .Summary.MaxDrawdown}}</td></tr>
  <tr data-metric="sharpe_ratio"><td>夏普比率</td><td>{{printf "%.2f" .Summary.SharpeRatio}}</td></tr>
  <tr data-metric="win_rate"><td>胜率</td><td>{{percent .Summary.WinRate}}</td></tr>
  <tr data-metric="final_nav"><td>最终净值</td><td>{{printf "%.4f" .Summary.FinalNAV}}</td></tr>
</table>
<script>
const labels = {{.Labels}};
const values = {{.Values}};
new Chart(document.getElementById("navChart"), {
  type: "line",
  data: { labels: labels, datasets: [{ label: "策略净值", data: values, borderColor: "#d62728", pointRadius: 0, tension: 0.1 }] },
  options: { responsive: false, scales: { y: { title: { display: true, text: "NAV" } } } }
});
</script>
</body>
</html>
`))

type chartData struct {
	*Document
	Labels template.JS
	Values template.JS
}

// WriteChart writes a standalone HTML NAV chart
func WriteChart(path string, doc *Document) error {
	labels := make([]string, len(doc.NAV))
	values := make([]float64, len(doc.NAV))
	for i, p := range doc.NAV {
		labels[i] = p.Date.Format(contracts.DateLayout)
		values[i] = p.NAV
	}

	lj, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	vj, err := json.Marshal(values)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, chartData{Document: doc, Labels: template.JS(lj), Values: template.JS(vj)}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
