// trendwatch collects posts, videos and products from social and
// e-commerce platforms and tracks their metrics over time.
package main

import (
	"github.com/hqnguyen/trendwatch/cmd"
)

func main() {
	cmd.Execute()
}
