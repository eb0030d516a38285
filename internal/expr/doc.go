// Package expr реализует custom-выражения для узлов expression.
//
// Выражения записываются в синтаксисе HCL (hashicorp/hcl/v2) и
// вычисляются для каждой ячейки колонки. Значение ячейки доступно как
// переменная value; набор функций взят из go-cty stdlib.
//
// Выражение компилируется один раз на узел (Compile) и затем
// вычисляется для каждой строки (Eval).
package expr
