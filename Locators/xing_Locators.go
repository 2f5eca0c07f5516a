package locators

/**
 * Xing 网页元素定位器
 * CSS 选择器以 XING_ 开头，XPath 以 // 开头
 */

const XING_HOME_URL = "https://www.xing.com"
const XING_LOGIN_URL = "https://login.xing.com/"
const XING_SEARCH_URL = "https://www.xing.com/jobs/search?sc_o=jobs_search_button"

// 登录后左侧导航中的“我的职位”，用于判断是否已登录
const XING_LOGIN_INDICATOR = "[data-qa='frame-vnav-my-jobs']"

/**
 * 搜索结果页
 */
const XING_JOB_LIST = "ul.results-styles__List-sc-31de7c67-0 li"
const XING_JOB_LINK = "a[data-testid='job-search-result']"
const XING_JOB_TITLE = "h2"

// 职位详情页
const XING_ALREADY_APPLIED = "//div[contains(text(), 'You applied for this job')]"
const XING_APPLY_BUTTON = "[data-testid='apply-button']"
const XING_APPLY_BUTTON_TEXT = "Easy apply"
const XING_SEND_APPLICATION = "//button[.//span[text()='Send application']]"
const XING_SUCCESS = "div.success-styles__ImageContainer-sc-8138dec4-0"
