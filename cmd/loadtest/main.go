package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Int("product", 1, "product id")
	stockCheck := flag.Bool("stock", true, "check product stock after test (needs admin credentials)")
	adminUser := flag.String("admin-user", "admin", "admin username for stock check")
	adminPass := flag.String("admin-pass", "admin123", "admin password for stock check")

	// 并发结账：每个购物者独立会话，各买 1 件
	nShoppers := flag.Int("shoppers", 200, "distinct shoppers")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	fmt.Printf("start checkout test: product=%d shoppers=%d concurrency=%d\n", *productID, *nShoppers, *concurrency)
	results := runCheckouts(*baseURL, *productID, *nShoppers, *concurrency)
	printSummary("checkout", results)

	if *stockCheck {
		stock, err := getStock(*baseURL, *productID, *adminUser, *adminPass)
		if err != nil {
			fmt.Println("stock check err:", err)
		} else {
			fmt.Println("final stock (never negative):", stock)
		}
	}

	// 同一会话重复提交同一个幂等键：只应成功一次，其余 409（或被限流 429）。
	fmt.Println("\nstart idempotency test: one shopper, 50 submissions of the same key")
	results2 := runSameKey(*baseURL, *productID, 50, 50)
	printSummary("idempotency", results2)
}

// newShopper 带 cookie jar 的客户端，会话 cookie 自动保存。
func newShopper() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: 5 * time.Second, Jar: jar}
}

func runCheckouts(baseURL string, productID, n, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			client := newShopper()
			if r := addToCart(client, baseURL, productID); r.Err != nil || r.Status != http.StatusOK {
				results[idx] = r
				return
			}
			results[idx] = checkoutOnce(client, baseURL, uuid.NewString(), idx)
		}(i)
	}

	wg.Wait()
	return results
}

func runSameKey(baseURL string, productID, total, concurrency int) []Result {
	client := newShopper()
	if r := addToCart(client, baseURL, productID); r.Err != nil {
		return []Result{r}
	}
	key := uuid.NewString()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = checkoutOnce(client, baseURL, key, idx)
		}(i)
	}
	wg.Wait()
	return results
}

func addToCart(client *http.Client, baseURL string, productID int) Result {
	return postJSON(client, baseURL+"/api/cart/items", map[string]any{
		"product_id": fmt.Sprint(productID),
		"quantity":   1,
	}, nil)
}

func checkoutOnce(client *http.Client, baseURL, key string, idx int) Result {
	return postJSON(client, baseURL+"/api/checkout", map[string]any{
		"name":  fmt.Sprintf("Shopper %d", idx+1),
		"phone": fmt.Sprintf("06%08d", idx+1),
		"city":  "Casablanca",
	}, map[string]string{"Idempotency-Key": key})
}

func postJSON(client *http.Client, url string, body any, headers map[string]string) Result {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(out)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// getStock 登录后台读取商品库存，校验压测后库存没有变成负数。
func getStock(baseURL string, productID int, user, pass string) (int64, error) {
	client := newShopper()
	if r := postJSON(client, baseURL+"/api/admin/login", map[string]string{"username": user, "password": pass}, nil); r.Err != nil || r.Status != http.StatusOK {
		if r.Err != nil {
			return 0, r.Err
		}
		return 0, fmt.Errorf("login status=%d body=%s", r.Status, r.Body)
	}
	resp, err := client.Get(fmt.Sprintf("%s/api/admin/products/%d", baseURL, productID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}
